package fixture

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"

	"github.com/albapepper/powerdata/internal/ledger"
	"github.com/albapepper/powerdata/internal/provider"
)

// Progress is told how many fixtures of a run have finished.
type Progress func(done, total int)

// Scheduler drives the Loader over many fixtures, one at a time.
type Scheduler struct {
	loader  *Loader
	leagues provider.LeagueSource
	ledger  ledger.Ledger
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(loader *Loader, leagues provider.LeagueSource, l ledger.Ledger, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{loader: loader, leagues: leagues, ledger: l, logger: logger}
}

// NewRunID returns a sortable run identifier.
func NewRunID() string { return ulid.Make().String() }

// TargetFor builds a Target from a listed competition.
func TargetFor(l provider.League) Target {
	return Target{
		LeagueID:          l.ID,
		FixtureID:         l.ID,
		Title:             l.Title(),
		RegulationPeriods: l.RegulationPeriods,
	}
}

// Target looks up one fixture in the competition list. A fixture that is
// not listed is returned bare so it can still be loaded.
func (s *Scheduler) Target(ctx context.Context, fixtureID string) (Target, error) {
	leagues, err := s.leagues.Leagues(ctx)
	if err != nil {
		return Target{}, errors.Wrap(err, "list competitions")
	}
	for _, l := range leagues {
		if l.ID == fixtureID {
			return TargetFor(l), nil
		}
	}
	s.logger.Warn("Fixture not in competition list, loading without title", "fixture_id", fixtureID)
	return Target{LeagueID: fixtureID, FixtureID: fixtureID}, nil
}

// RunAll loads every listed competition, or only those whose ID is in only
// when it is non-empty.
func (s *Scheduler) RunAll(ctx context.Context, runID string, only []string, progress Progress) RunResult {
	start := time.Now()
	result := RunResult{RunID: runID}

	leagues, err := s.leagues.Leagues(ctx)
	if err != nil {
		result.Errors = append(result.Errors, errors.Wrap(err, "list competitions").Error())
		result.Duration = time.Since(start)
		return result
	}

	filter := make(map[string]struct{}, len(only))
	for _, id := range only {
		filter[id] = struct{}{}
	}
	var targets []Target
	for _, l := range leagues {
		if len(filter) > 0 {
			if _, ok := filter[l.ID]; !ok {
				continue
			}
		}
		targets = append(targets, TargetFor(l))
	}

	s.run(ctx, targets, progress, &result)
	result.Duration = time.Since(start)
	return result
}

// RetryBroken re-drives every fixture in the ledger.
func (s *Scheduler) RetryBroken(ctx context.Context, runID string, progress Progress) RunResult {
	start := time.Now()
	result := RunResult{RunID: runID}

	ids, err := ledger.IDs(ctx, s.ledger)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}
	if len(ids) == 0 {
		s.logger.Info("No broken fixtures to retry")
		result.Duration = time.Since(start)
		return result
	}

	byID := make(map[string]provider.League)
	if leagues, err := s.leagues.Leagues(ctx); err != nil {
		s.logger.Warn("Competition list unavailable, retrying without titles", "error", err)
	} else {
		for _, l := range leagues {
			byID[l.ID] = l
		}
	}

	targets := make([]Target, 0, len(ids))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			targets = append(targets, TargetFor(l))
		} else {
			targets = append(targets, Target{LeagueID: id, FixtureID: id})
		}
	}

	s.run(ctx, targets, progress, &result)
	result.Duration = time.Since(start)
	return result
}

func (s *Scheduler) run(ctx context.Context, targets []Target, progress Progress, result *RunResult) {
	result.FixturesFound = len(targets)
	if len(targets) == 0 {
		s.logger.Info("No fixtures to load", "run_id", result.RunID)
		return
	}
	s.logger.Info("Found fixtures", "run_id", result.RunID, "count", len(targets))

	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, errors.Wrap(err, "run cancelled").Error())
			break
		}
		result.Add(s.loader.Load(ctx, t))
		if progress != nil {
			progress(i+1, len(targets))
		}
	}
	s.logger.Info("Run complete", "summary", result.Summary())
}
