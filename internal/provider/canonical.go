// Package provider defines the shapes every upstream fetcher returns. The
// orchestrator only ever sees these types; how a provider gets them (HTTP,
// files, fixtures in tests) stays behind the Fetcher interface.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Record is one denormalized upstream row. Values keep their decoded JSON
// types (string, float64, bool, nil, nested maps/slices).
type Record map[string]interface{}

// Clone returns a shallow copy so derived rows never alias fetcher output.
func (r Record) Clone() Record {
	out := make(Record, len(r)+8)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is the tabular result of a single fetch. Columns is the union of keys
// seen across all rows, in first-seen order.
type Table struct {
	Columns []string
	Rows    []Record
}

// NewTable builds a Table from rows, deriving the column set.
func NewTable(rows []Record) Table {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	return Table{Columns: cols, Rows: rows}
}

// Empty reports whether the fetch produced no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// HasColumns reports whether every named column is present.
func (t Table) HasColumns(names ...string) bool {
	for _, n := range names {
		found := false
		for _, c := range t.Columns {
			if c == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Fetcher returns raw records for a (league, match) pair. For the fixture
// list the match argument is the fixture ID. An empty Table means no data; a
// non-nil error means the fetch itself failed.
type Fetcher interface {
	Fetch(ctx context.Context, leagueID, matchID string) (Table, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, leagueID, matchID string) (Table, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, leagueID, matchID string) (Table, error) {
	return f(ctx, leagueID, matchID)
}

// League is one competition-season as listed by the provider. A league's ID
// doubles as its fixture ID.
type League struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Season            string `json:"season"`
	RegulationPeriods int    `json:"regulation_periods"`
}

// Title returns the "name season" label used as the fixture title.
func (l League) Title() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", l.Name, l.Season))
}

// LeagueSource lists the competitions available upstream.
type LeagueSource interface {
	Leagues(ctx context.Context) ([]League, error)
}

// ClassifyInput is what a sport classifier gets to look at.
type ClassifyInput struct {
	LeagueID          string
	LeagueName        string
	RegulationPeriods int
	SquadIDs          []string
}

// Classifier derives a sport category (display form) for a fixture. An
// empty or unmapped category is allowed.
type Classifier interface {
	Classify(in ClassifyInput) string
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(in ClassifyInput) string

// Classify calls f.
func (f ClassifierFunc) Classify(in ClassifyInput) string { return f(in) }
