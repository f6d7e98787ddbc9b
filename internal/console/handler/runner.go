package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/albapepper/powerdata/internal/fixture"
)

// ErrRunActive is returned when a scrape is requested while one is running.
var ErrRunActive = errors.New("a scrape is already in progress")

// Run states reported by Status.
const (
	StateIdle       = "idle"
	StateInProgress = "in_progress"
	StateComplete   = "complete"
)

// ScrapeFunc runs one scrape. only is empty for a full run.
type ScrapeFunc func(ctx context.Context, runID string, only []string, progress fixture.Progress) fixture.RunResult

// Status is the last known state of the background scrape. Progress is
// fixtures processed over fixtures found and is only indicative.
type Status struct {
	State      string     `json:"state"`
	RunID      string     `json:"run_id,omitempty"`
	Progress   float64    `json:"progress"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Committed  int        `json:"committed"`
	Broken     int        `json:"broken"`
	Skipped    int        `json:"skipped"`
	Summary    string     `json:"summary,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}

// Runner executes at most one scrape at a time on a single-worker pool.
type Runner struct {
	ctx    context.Context
	scrape ScrapeFunc
	pool   *ants.Pool
	logger *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewRunner creates a Runner. Runs inherit ctx, so cancelling it stops the
// active scrape between fixtures.
func NewRunner(ctx context.Context, scrape ScrapeFunc, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(1, ants.WithNonblocking(true), ants.WithDisablePurge(true))
	if err != nil {
		return nil, errors.Wrap(err, "create scrape pool")
	}
	return &Runner{
		ctx:    ctx,
		scrape: scrape,
		pool:   pool,
		logger: logger,
		status: Status{State: StateIdle},
	}, nil
}

// Start submits a scrape and returns its run ID.
func (r *Runner) Start(only []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.State == StateInProgress {
		return "", ErrRunActive
	}

	runID := fixture.NewRunID()
	now := time.Now().UTC()
	prev := r.status
	r.status = Status{State: StateInProgress, RunID: runID, StartedAt: &now}

	err := r.pool.Submit(func() { r.execute(runID, only) })
	if err != nil {
		r.status = prev
		if errors.Is(err, ants.ErrPoolOverload) {
			return "", ErrRunActive
		}
		return "", errors.Wrap(err, "submit scrape")
	}
	r.logger.Info("Scrape started", "run_id", runID, "fixture_ids", only)
	return runID, nil
}

func (r *Runner) execute(runID string, only []string) {
	var result fixture.RunResult
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Scrape panicked", "run_id", runID, "panic", p)
			result.Errors = append(result.Errors, errors.Newf("panic: %v", p).Error())
		}
		r.finish(result)
	}()

	result = r.scrape(r.ctx, runID, only, func(done, total int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.status.Processed = done
		r.status.Total = total
		if total > 0 {
			r.status.Progress = float64(done) * 100 / float64(total)
		}
	})
}

func (r *Runner) finish(result fixture.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.status.State = StateComplete
	r.status.FinishedAt = &now
	r.status.Progress = 100
	r.status.Processed = result.Processed()
	r.status.Total = result.FixturesFound
	r.status.Committed = result.FixturesLoaded
	r.status.Broken = result.FixturesBroken
	r.status.Skipped = result.FixturesSkipped
	r.status.Summary = result.Summary()
	r.status.Errors = result.Errors
	r.logger.Info("Scrape finished", "summary", r.status.Summary)
}

// Status returns a snapshot of the current state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Errors = append([]string(nil), r.status.Errors...)
	return s
}

// Close waits up to timeout for the active scrape and releases the pool.
func (r *Runner) Close(timeout time.Duration) error {
	return r.pool.ReleaseTimeout(timeout)
}
