package championdata

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/powerdata/internal/provider"
)

// Extra player columns carried onto box-score rows when upstream has them.
var optionalPlayerFields = []string{
	"recruitedFrom", "mainPlayingPosition", "positionName", "debut", "positionId", "dob", "height",
}

var playerNameFields = []string{"firstname", "surname", "displayName", "shortDisplayName"}

// FixtureList returns the matches of a fixture. The match argument of Fetch
// is the fixture ID and is not used in the path.
type FixtureList struct{ c *Client }

// BoxScore returns one row per player per match.
type BoxScore struct{ c *Client }

// PeriodStats returns one row per player per period.
type PeriodStats struct{ c *Client }

// ScoreFlow returns one row per scoring event in upstream order.
type ScoreFlow struct{ c *Client }

// Competitions lists every competition-season.
type Competitions struct{ c *Client }

func (c *Client) FixtureList() FixtureList   { return FixtureList{c} }
func (c *Client) BoxScore() BoxScore         { return BoxScore{c} }
func (c *Client) PeriodStats() PeriodStats   { return PeriodStats{c} }
func (c *Client) ScoreFlow() ScoreFlow       { return ScoreFlow{c} }
func (c *Client) Competitions() Competitions { return Competitions{c} }

// Fetch implements provider.Fetcher.
func (f FixtureList) Fetch(ctx context.Context, leagueID, _ string) (provider.Table, error) {
	doc, ok, err := f.c.getDocument(ctx, "/"+leagueID+"/fixture.json")
	if err != nil || !ok {
		return provider.Table{}, err
	}
	return provider.NewTable(records(dig(doc, "fixture", "match"))), nil
}

// Fetch implements provider.Fetcher.
func (b BoxScore) Fetch(ctx context.Context, leagueID, matchID string) (provider.Table, error) {
	doc, ok, err := b.c.getDocument(ctx, matchPath(leagueID, matchID))
	if err != nil || !ok {
		return provider.Table{}, err
	}

	box := records(dig(doc, "matchStats", "playerStats", "player"))
	if len(box) == 0 {
		b.c.logger.Warn("Player stats not found", "league_id", leagueID, "match_id", matchID)
		return provider.Table{}, nil
	}

	players := indexBy(records(dig(doc, "matchStats", "playerInfo", "player")), "playerId")
	teams := records(dig(doc, "matchStats", "teamInfo", "team"))
	teamsByID := indexBy(teams, "squadId")
	info, _ := dig(doc, "matchStats", "matchInfo").(map[string]interface{})

	homeID := info["homeSquadId"]
	awayID := info["awaySquadId"]
	homeName := squadNameOf(teamsByID, homeID)
	awayName := squadNameOf(teamsByID, awayID)

	rows := make([]provider.Record, 0, len(box))
	for _, r := range box {
		row := r.Clone()
		if p, ok := players[key(r["playerId"])]; ok {
			for _, f := range playerNameFields {
				row[f] = p[f]
			}
			for _, f := range optionalPlayerFields {
				if v, ok := p[f]; ok {
					row[f] = v
				}
			}
		}
		if t, ok := teamsByID[key(r["squadId"])]; ok {
			row["squadName"] = t["squadName"]
			if v, ok := t["squadShortName"]; ok {
				row["squadShortName"] = v
			}
		} else {
			row["squadName"] = nil
		}
		row["homeId"] = homeID
		row["awayId"] = awayID
		if key(r["squadId"]) == key(homeID) {
			row["opponent"] = awayName
		} else {
			row["opponent"] = homeName
		}
		row["round"] = info["roundNumber"]
		row["powerPlayPeriod"] = info["powerPlayPeriod"]
		row["matchId"] = matchID
		delete(row, "squadNickname")
		delete(row, "squadCode")
		rows = append(rows, row)
	}

	table := provider.NewTable(rows)
	if !table.HasColumns("firstname", "surname") {
		b.c.logger.Warn("Box score has no name columns", "league_id", leagueID, "match_id", matchID)
	}
	return table, nil
}

// Fetch implements provider.Fetcher.
func (p PeriodStats) Fetch(ctx context.Context, leagueID, matchID string) (provider.Table, error) {
	doc, ok, err := p.c.getDocument(ctx, matchPath(leagueID, matchID))
	if err != nil || !ok {
		return provider.Table{}, err
	}
	rows := records(dig(doc, "matchStats", "playerPeriodStats", "player"))
	if len(rows) == 0 {
		p.c.logger.Warn("No player period stats", "league_id", leagueID, "match_id", matchID)
		return provider.Table{}, nil
	}
	return provider.NewTable(joinPlayers(doc, rows, matchID)), nil
}

// Fetch implements provider.Fetcher.
func (s ScoreFlow) Fetch(ctx context.Context, leagueID, matchID string) (provider.Table, error) {
	doc, ok, err := s.c.getDocument(ctx, matchPath(leagueID, matchID))
	if err != nil || !ok {
		return provider.Table{}, err
	}
	rows := records(dig(doc, "matchStats", "scoreFlow", "score"))
	if len(rows) == 0 {
		s.c.logger.Warn("No score flow", "league_id", leagueID, "match_id", matchID)
		return provider.Table{}, nil
	}
	return provider.NewTable(joinPlayers(doc, rows, matchID)), nil
}

// Leagues implements provider.LeagueSource, ordered by ID.
func (c Competitions) Leagues(ctx context.Context) ([]provider.League, error) {
	doc, ok, err := c.c.getDocument(ctx, "/competitions.json")
	if err != nil {
		return nil, errors.Wrap(err, "fetch competitions")
	}
	if !ok {
		return nil, nil
	}

	var out []provider.League
	for _, r := range records(dig(doc, "competitionDetails", "competition")) {
		id, ok := provider.ExtractString(r["id"])
		if !ok {
			continue
		}
		l := provider.League{ID: id}
		l.Name, _ = provider.ExtractString(r["name"])
		l.Season, _ = provider.ExtractString(r["season"])
		l.RegulationPeriods, _ = provider.ExtractInt(r["regulationPeriods"])
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := provider.ExtractInt(out[i].ID)
		b, bok := provider.ExtractInt(out[j].ID)
		if aok && bok {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// joinPlayers adds name columns from playerInfo and the match ID.
func joinPlayers(doc map[string]interface{}, rows []provider.Record, matchID string) []provider.Record {
	players := indexBy(records(dig(doc, "matchStats", "playerInfo", "player")), "playerId")
	out := make([]provider.Record, 0, len(rows))
	for _, r := range rows {
		row := r.Clone()
		row["matchId"] = matchID
		if p, ok := players[key(r["playerId"])]; ok {
			for _, f := range playerNameFields {
				row[f] = p[f]
			}
		}
		out = append(out, row)
	}
	return out
}

// dig walks nested objects. A missing or mistyped step yields nil.
func dig(doc map[string]interface{}, path ...string) interface{} {
	var cur interface{} = doc
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

// records converts a JSON array of objects; a lone object counts as one row.
func records(v interface{}) []provider.Record {
	switch x := v.(type) {
	case []interface{}:
		out := make([]provider.Record, 0, len(x))
		for _, item := range x {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, provider.Record(m))
			}
		}
		return out
	case map[string]interface{}:
		return []provider.Record{provider.Record(x)}
	default:
		return nil
	}
}

func key(v interface{}) string {
	s, _ := provider.ExtractString(v)
	return s
}

// indexBy keeps the first record per field value.
func indexBy(rows []provider.Record, field string) map[string]provider.Record {
	out := make(map[string]provider.Record, len(rows))
	for _, r := range rows {
		k := key(r[field])
		if k == "" {
			continue
		}
		if _, dup := out[k]; !dup {
			out[k] = r
		}
	}
	return out
}

func squadNameOf(teams map[string]provider.Record, id interface{}) interface{} {
	if t, ok := teams[key(id)]; ok {
		return t["squadName"]
	}
	return nil
}
