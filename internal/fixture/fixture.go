// Package fixture loads one fixture at a time: fetch, key, resolve players,
// then write every derived row inside a single transaction. A fixture whose
// write cannot commit is recorded in the broken-fixture ledger for re-drive.
package fixture

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrFatal marks a failure that forces the fixture transaction to roll back.
var ErrFatal = errors.New("fatal fixture failure")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Target identifies one fixture to load. For Champion Data the fixture ID
// equals the league ID.
type Target struct {
	LeagueID          string
	FixtureID         string
	Title             string
	RegulationPeriods int
}

// Outcome is the terminal state of a fixture load.
type Outcome string

const (
	Committed        Outcome = "committed"
	RolledBackBroken Outcome = "rolled_back_broken"
	SkippedNoData    Outcome = "skipped_no_data"
	SkippedNoMapping Outcome = "skipped_no_mapping"
)

// Kind is a table family in the write phase.
type Kind string

const (
	KindSquad     Kind = "squad"
	KindSport     Kind = "sport"
	KindPlayer    Kind = "player"
	KindFixture   Kind = "fixture"
	KindMatch     Kind = "match"
	KindPeriod    Kind = "period"
	KindScoreFlow Kind = "score_flow"
)

// Severity classifies a batch result.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityRecoverable
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// FailurePolicy says how severe a failed batch of each kind is. Kinds not
// listed are recoverable.
type FailurePolicy map[Kind]Severity

// DefaultFailurePolicy aborts the fixture only when the sport row fails.
func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{KindSport: SeverityFatal}
}

// Severity returns the severity of a failed batch of kind k.
func (p FailurePolicy) Severity(k Kind) Severity {
	if s, ok := p[k]; ok && s != SeverityOK {
		return s
	}
	return SeverityRecoverable
}

// BatchOutcome is the classified result of writing one batch.
type BatchOutcome struct {
	Kind     Kind
	Table    string
	MatchID  string
	Rows     int
	Severity Severity
	Err      error
}

// Result tracks the outcome of loading a single fixture.
type Result struct {
	FixtureID string
	LeagueID  string
	Title     string
	Category  string
	SportID   string
	Outcome   Outcome

	MatchesSeen     int
	MatchesExcluded int // scheduled or incomplete
	MatchesSkipped  int // no usable box score

	// Written counts committed rows only; it stays empty on rollback.
	Written map[Kind]int
	Dropped map[string]int
	// LowConfidence counts queued rows whose key has an Unknown component.
	LowConfidence map[Kind]int
	Batches       []BatchOutcome

	Err      error
	Error    string
	Duration time.Duration
}

// Success reports whether the fixture reached a non-broken terminal state.
func (r *Result) Success() bool { return r.Outcome != RolledBackBroken }

func (r *Result) addDropped(reason string, n int) {
	if n == 0 {
		return
	}
	if r.Dropped == nil {
		r.Dropped = make(map[string]int)
	}
	r.Dropped[reason] += n
}

func (r *Result) addLowConfidence(k Kind) {
	if r.LowConfidence == nil {
		r.LowConfidence = make(map[Kind]int)
	}
	r.LowConfidence[k]++
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	s := fmt.Sprintf("fixture=%s category=%q sport=%s outcome=%s matches=%d excluded=%d skipped=%d rows=[%s] dropped=[%s] low_confidence=[%s] dur=%s",
		r.FixtureID, r.Category, orDash(r.SportID), r.Outcome,
		r.MatchesSeen, r.MatchesExcluded, r.MatchesSkipped,
		formatCounts(kindCounts(r.Written)), formatCounts(r.Dropped),
		formatCounts(kindCounts(r.LowConfidence)),
		r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		s += " error=" + r.Error
	}
	return s
}

// RunResult tracks the outcome of a multi-fixture run.
type RunResult struct {
	RunID           string
	FixturesFound   int
	FixturesLoaded  int
	FixturesBroken  int
	FixturesSkipped int
	Duration        time.Duration
	Errors          []string
	Results         []Result
}

// Add folds one fixture result into the run.
func (r *RunResult) Add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case Committed:
		r.FixturesLoaded++
	case RolledBackBroken:
		r.FixturesBroken++
		r.Errors = append(r.Errors, fmt.Sprintf("fixture %s: %s", res.FixtureID, res.Error))
	default:
		r.FixturesSkipped++
	}
}

// Processed is the number of fixtures that reached a terminal state.
func (r *RunResult) Processed() int { return len(r.Results) }

// Summary returns a human-readable summary.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"run=%s found=%d processed=%d committed=%d broken=%d skipped=%d dur=%s",
		orDash(r.RunID), r.FixturesFound, r.Processed(), r.FixturesLoaded,
		r.FixturesBroken, r.FixturesSkipped, r.Duration.Round(time.Second))
}

func kindCounts(m map[Kind]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
