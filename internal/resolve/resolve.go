// Package resolve translates an unusable upstream player ID into a persisted
// one by matching name and squad against the player directory.
package resolve

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/powerdata/internal/keys"
)

// Directory answers candidate lookups against persisted players.
//
// Implementations compare firstname and surname case-insensitively after
// trimming. squadName is empty when the caller wants no squad constraint.
type Directory interface {
	FindPlayers(ctx context.Context, firstname, surname, squadName string) ([]string, error)
}

// Resolver performs the fallback lookup.
type Resolver struct {
	dir    Directory
	logger *slog.Logger
}

// New creates a Resolver over dir.
func New(dir Directory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns the directory player ID for the given name and squad.
// ok is false when nothing matched. With several matches the lowest numeric
// ID wins and a warning is logged.
func (r *Resolver) Resolve(ctx context.Context, firstname, surname, squadName string) (string, bool, error) {
	firstname = strings.TrimSpace(firstname)
	surname = strings.TrimSpace(surname)
	if firstname == "" || surname == "" {
		return "", false, nil
	}

	squad := strings.TrimSpace(squadName)
	if squad == keys.UnknownSquad {
		squad = ""
	}

	ids, err := r.dir.FindPlayers(ctx, firstname, surname, squad)
	if err != nil {
		return "", false, errors.Wrapf(err, "resolve player %s %s", firstname, surname)
	}

	ids = candidates(ids)
	switch len(ids) {
	case 0:
		return "", false, nil
	case 1:
		return ids[0], true, nil
	}

	r.logger.Warn("Ambiguous player match, using lowest id",
		"firstname", firstname, "surname", surname, "squad_name", squad,
		"candidates", ids, "player_id", ids[0])
	return ids[0], true, nil
}

// candidates drops unusable IDs, dedupes and sorts numerically.
func candidates(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !keys.ValidPlayerID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return numericLess(out[i], out[j]) })
	return out
}

func numericLess(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	}
	return x < y
}
