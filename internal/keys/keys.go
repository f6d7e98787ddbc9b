// Package keys derives the composite identifiers that tie sport, fixture,
// squad, player, match, period and score-flow rows together.
//
// Every function here is pure: same input, same key. Missing identifiers are
// folded in as the literal "Unknown", so any key containing it should be
// treated as low confidence by callers.
package keys

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/albapepper/powerdata/internal/provider"
)

const (
	// Unknown stands in for a missing identifier component.
	Unknown = "Unknown"
	// UnknownSquad is the default squad name when upstream omits it.
	UnknownSquad = "Unknown Squad"
)

// SquadPolicy decides how a squad without a name contributes to its key.
type SquadPolicy string

const (
	// SquadPolicyFold keys a nameless squad as "<id>-Unknown Squad", so the
	// same squad seen with and without a name yields two identities.
	SquadPolicyFold SquadPolicy = "fold"
	// SquadPolicyIDOnly keys a nameless squad by its ID alone.
	SquadPolicyIDOnly SquadPolicy = "id-only"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	yearPattern   = regexp.MustCompile(`\b(20\d{2})\b`)
)

// ID coerces an identifier value to its string form, or Unknown.
func ID(v interface{}) string {
	if s, ok := provider.ExtractString(v); ok {
		return s
	}
	return Unknown
}

// Name trims a person-name value; non-strings become "".
func Name(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// SquadName trims a squad-name value; absent, NaN or blank becomes UnknownSquad.
func SquadName(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return UnknownSquad
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return UnknownSquad
	}
	return s
}

// Sport returns uniqueSportId. A missing sport ID degrades the whole key to
// Unknown.
func Sport(sportID, fixtureID string) string {
	if sportID == "" || sportID == Unknown || fixtureID == "" || fixtureID == Unknown {
		return Unknown
	}
	return sportID + "-" + fixtureID
}

// Squad returns uniqueSquadId under the given policy.
func Squad(squadID, squadName string, policy SquadPolicy) string {
	if squadName == UnknownSquad && policy == SquadPolicyIDOnly {
		return squadID
	}
	return squadID + "-" + squadName
}

// Player returns uniquePlayerId.
func Player(playerID, squadID string) string { return playerID + "-" + squadID }

// Match returns uniqueMatchId, the per-player-per-match anchor.
func Match(matchID, playerID string) string { return matchID + "-" + playerID }

// Fixture returns uniqueFixtureId.
func Fixture(fixtureID, matchID string) string { return fixtureID + "-" + matchID }

// Period returns periodId (also used as uniquePeriodId).
func Period(matchID, period string) string { return matchID + "_" + period }

// ScoreFlow returns scoreFlowId for the seq-th event of a match (1-based).
func ScoreFlow(matchID string, seq int) string {
	return matchID + "_flow_" + strconv.Itoa(seq)
}

// ValidPlayerID reports whether an upstream player ID can be used as-is: an
// all-digit string other than "0".
func ValidPlayerID(id string) bool {
	if id == "" || id == "0" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LowConfidence reports whether a key was built from a missing component.
func LowConfidence(key string) bool { return strings.Contains(key, Unknown) }

// NormalizeCategory collapses whitespace runs and trims a sport category.
// The first result keeps case for display; the second is the lookup form.
func NormalizeCategory(category string) (display, lookup string) {
	display = strings.TrimSpace(whitespaceRun.ReplaceAllString(category, " "))
	return display, strings.ToLower(display)
}

// TablePrefix turns a lookup-form category into a table-name prefix.
func TablePrefix(lookup string) string { return strings.ReplaceAll(lookup, " ", "_") }

// FixtureYear extracts the first 20xx year from a fixture title.
func FixtureYear(title string) string {
	m := yearPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}
