package keys

import (
	"fmt"

	"github.com/albapepper/powerdata/internal/provider"
)

// Context is the fixture-level input shared by every row of one fixture.
type Context struct {
	FixtureID    string
	SportID      string // "" when the category has no mapping
	SportName    string
	FixtureTitle string
	FixtureYear  string
	Policy       SquadPolicy
}

// SportKey returns uniqueSportId for the fixture.
func (c Context) SportKey() string { return Sport(c.SportID, c.FixtureID) }

func (c Context) sportValue() interface{} {
	if c.SportID == "" {
		return nil
	}
	return c.SportID
}

func (c Context) yearValue() interface{} {
	if c.FixtureYear == "" {
		return nil
	}
	return c.FixtureYear
}

// SportRow builds the single sport_info row of a fixture.
func (c Context) SportRow() provider.Record {
	return provider.Record{
		"sportId":       c.sportValue(),
		"sportName":     c.SportName,
		"fixtureId":     c.FixtureID,
		"fixtureTitle":  c.FixtureTitle,
		"fixtureYear":   c.yearValue(),
		"uniqueSportId": c.SportKey(),
	}
}

// FixtureRow keys one scheduled match. All upstream scheduling fields are
// carried through. Returns the row and its match ID.
func (c Context) FixtureRow(raw provider.Record) (provider.Record, string) {
	matchID := ID(raw["matchId"])
	row := raw.Clone()
	row["fixtureId"] = c.FixtureID
	row["sportId"] = c.sportValue()
	row["matchId"] = matchID
	row["uniqueFixtureId"] = Fixture(c.FixtureID, matchID)
	row["uniqueSportId"] = c.SportKey()
	if name, ok := provider.ExtractString(raw["matchName"]); !ok || name == "" {
		row["matchName"] = fmt.Sprintf("%v vs %v | %v",
			raw["homeSquadName"], raw["awaySquadName"], raw["localStartTime"])
	}
	return row, matchID
}

// SquadRows returns the home and away squad rows of a fixture match.
func (c Context) SquadRows(raw provider.Record) []provider.Record {
	out := make([]provider.Record, 0, 2)
	for _, side := range []string{"home", "away"} {
		id := ID(raw[side+"SquadId"])
		name := SquadName(raw[side+"SquadName"])
		out = append(out, provider.Record{
			"squadId":       id,
			"squadName":     name,
			"uniqueSquadId": Squad(id, name, c.Policy),
			"fixtureTitle":  c.FixtureTitle,
			"fixtureYear":   c.yearValue(),
		})
	}
	return out
}

// Identity is the player/squad portion of a stat row after normalization.
type Identity struct {
	PlayerID  string
	SquadID   string
	SquadName string
	Firstname string
	Surname   string
}

// ReadIdentity normalizes the identity fields of a raw stat row.
func ReadIdentity(raw provider.Record) Identity {
	return Identity{
		PlayerID:  ID(raw["playerId"]),
		SquadID:   ID(raw["squadId"]),
		SquadName: SquadName(raw["squadName"]),
		Firstname: Name(raw["firstname"]),
		Surname:   Name(raw["surname"]),
	}
}

func (c Context) stamp(row provider.Record, matchID string, id Identity) {
	row["matchId"] = matchID
	row["playerId"] = id.PlayerID
	row["uniquePlayerId"] = Player(id.PlayerID, id.SquadID)
	row["uniqueMatchId"] = Match(matchID, id.PlayerID)
	row["uniqueSquadId"] = Squad(id.SquadID, id.SquadName, c.Policy)
	row["uniqueSportId"] = c.SportKey()
	row["uniqueFixtureId"] = Fixture(c.FixtureID, matchID)
}

// MatchRow keys one box-score row. id must carry the final player ID.
func (c Context) MatchRow(matchID string, raw provider.Record, id Identity) provider.Record {
	row := raw.Clone()
	c.stamp(row, matchID, id)
	row["squadId"] = id.SquadID
	row["squadName"] = id.SquadName
	row["fixtureId"] = c.FixtureID
	row["sportId"] = c.sportValue()
	row["fixtureYear"] = c.yearValue()
	return row
}

// PlayerEntry builds the player directory row for a box-score player.
func (c Context) PlayerEntry(raw provider.Record, id Identity) provider.Record {
	return provider.Record{
		"playerId":         id.PlayerID,
		"firstname":        orUnknown(id.Firstname),
		"surname":          orUnknown(id.Surname),
		"displayName":      orUnknown(Name(raw["displayName"])),
		"shortDisplayName": orUnknown(Name(raw["shortDisplayName"])),
		"squadName":        id.SquadName,
		"squadId":          id.SquadID,
		"sportId":          c.sportValue(),
		"uniqueSquadId":    Squad(id.SquadID, id.SquadName, c.Policy),
		"uniquePlayerId":   Player(id.PlayerID, id.SquadID),
	}
}

// PeriodRow keys one player-period row.
func (c Context) PeriodRow(matchID string, raw provider.Record, id Identity) provider.Record {
	row := raw.Clone()
	c.stamp(row, matchID, id)
	periodID := Period(matchID, ID(raw["period"]))
	row["periodId"] = periodID
	row["uniquePeriodId"] = periodID
	return row
}

// ScoreFlowRow keys the seq-th score event of a match.
func (c Context) ScoreFlowRow(matchID string, seq int, raw provider.Record, id Identity) provider.Record {
	row := raw.Clone()
	c.stamp(row, matchID, id)
	row["scoreFlowId"] = ScoreFlow(matchID, seq)
	return row
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
