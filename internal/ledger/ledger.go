// Package ledger records fixtures whose load was rolled back so they can be
// re-driven later. Every mutation is durable before it returns.
package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get for a fixture that is not in the ledger.
var ErrNotFound = errors.New("fixture not in ledger")

// Entry is one broken fixture.
type Entry struct {
	FixtureID string    `json:"fixture_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger is the broken-fixture set. Add on an existing fixture bumps its
// attempt count; Remove on a missing fixture is a no-op.
type Ledger interface {
	Add(ctx context.Context, fixtureID, reason string) error
	Remove(ctx context.Context, fixtureID string) error
	Get(ctx context.Context, fixtureID string) (Entry, error)
	// List returns entries in the order they were first added.
	List(ctx context.Context) ([]Entry, error)
}

// Contains reports whether fixtureID is in l.
func Contains(ctx context.Context, l Ledger, fixtureID string) (bool, error) {
	_, err := l.Get(ctx, fixtureID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// IDs returns the fixture IDs of l in ledger order.
func IDs(ctx context.Context, l Ledger) ([]string, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.FixtureID
	}
	return out, nil
}
