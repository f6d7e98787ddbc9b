package keys

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/powerdata/internal/provider"
)

func TestID(t *testing.T) {
	assert.Equal(t, "1001", ID(float64(1001)))
	assert.Equal(t, "1001", ID("1001"))
	assert.Equal(t, "12.5", ID(12.5))
	assert.Equal(t, Unknown, ID(nil))
	assert.Equal(t, Unknown, ID(""))
	assert.Equal(t, Unknown, ID(math.NaN()))
	assert.Equal(t, Unknown, ID(map[string]interface{}{"a": 1}))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Jo", Name("  Jo "))
	assert.Equal(t, "", Name(nil))
	assert.Equal(t, "", Name(42.0))

	assert.Equal(t, "Falcons", SquadName(" Falcons "))
	assert.Equal(t, UnknownSquad, SquadName(nil))
	assert.Equal(t, UnknownSquad, SquadName(""))
	assert.Equal(t, UnknownSquad, SquadName("NaN"))
	assert.Equal(t, UnknownSquad, SquadName(3.0))
}

func TestCompositeKeys(t *testing.T) {
	assert.Equal(t, "1-10343", Sport("1", "10343"))
	assert.Equal(t, Unknown, Sport("", "10343"))
	assert.Equal(t, "7-Falcons", Squad("7", "Falcons", SquadPolicyFold))
	assert.Equal(t, "7-Unknown Squad", Squad("7", UnknownSquad, SquadPolicyFold))
	assert.Equal(t, "7", Squad("7", UnknownSquad, SquadPolicyIDOnly))
	assert.Equal(t, "7-Falcons", Squad("7", "Falcons", SquadPolicyIDOnly))
	assert.Equal(t, "42-7", Player("42", "7"))
	assert.Equal(t, "900-42", Match("900", "42"))
	assert.Equal(t, "10343-900", Fixture("10343", "900"))
	assert.Equal(t, "900_2", Period("900", "2"))
	assert.Equal(t, "900_flow_3", ScoreFlow("900", 3))
}

func TestKeysAreDeterministic(t *testing.T) {
	ctx := Context{FixtureID: "10343", SportID: "1", Policy: SquadPolicyFold}
	raw := provider.Record{"playerId": 42.0, "squadId": 7.0, "squadName": "Falcons", "period": 1.0}
	id := ReadIdentity(raw)

	a := ctx.PeriodRow("900", raw, id)
	b := ctx.PeriodRow("900", raw, id)
	for _, k := range []string{"uniqueMatchId", "uniquePlayerId", "uniqueSquadId", "uniqueFixtureId", "uniquePeriodId"} {
		assert.Equal(t, a[k], b[k], k)
	}
	assert.Equal(t, "900_1", a["uniquePeriodId"])
	assert.Equal(t, "900-42", a["uniqueMatchId"])
}

func TestValidPlayerID(t *testing.T) {
	assert.True(t, ValidPlayerID("42"))
	assert.False(t, ValidPlayerID("0"))
	assert.True(t, ValidPlayerID("00"), "only a bare zero triggers the directory lookup")
	assert.True(t, ValidPlayerID("007"))
	assert.False(t, ValidPlayerID(""))
	assert.False(t, ValidPlayerID(Unknown))
	assert.False(t, ValidPlayerID("42.5"))
	assert.False(t, ValidPlayerID("-3"))
}

func TestLowConfidence(t *testing.T) {
	assert.True(t, LowConfidence("900-Unknown"))
	assert.True(t, LowConfidence("7-Unknown Squad"))
	assert.False(t, LowConfidence("900-42"))
}

func TestNormalizeCategory(t *testing.T) {
	display, lookup := NormalizeCategory("  Netball   Womens\tAustralia ")
	assert.Equal(t, "Netball Womens Australia", display)
	assert.Equal(t, "netball womens australia", lookup)
	assert.Equal(t, "netball_womens_australia", TablePrefix(lookup))
}

func TestFixtureYear(t *testing.T) {
	assert.Equal(t, "2024", FixtureYear("Super Netball 2024"))
	assert.Equal(t, "2019", FixtureYear("AFL Premiership 2019 Finals 2020"))
	assert.Equal(t, "", FixtureYear("Legacy Cup 1999"))
}

func TestContextRows(t *testing.T) {
	ctx := Context{
		FixtureID:    "10343",
		SportID:      "9",
		SportName:    "Netball Womens Australia",
		FixtureTitle: "Super Netball 2024",
		FixtureYear:  "2024",
		Policy:       SquadPolicyFold,
	}

	t.Run("sport row", func(t *testing.T) {
		row := ctx.SportRow()
		assert.Equal(t, "9-10343", row["uniqueSportId"])
		assert.Equal(t, "9", row["sportId"])
		assert.Equal(t, "2024", row["fixtureYear"])
	})

	t.Run("unmapped sport is null with degraded key", func(t *testing.T) {
		unmapped := ctx
		unmapped.SportID = ""
		row := unmapped.SportRow()
		assert.Nil(t, row["sportId"])
		assert.Equal(t, Unknown, row["uniqueSportId"])
	})

	t.Run("fixture row defaults match name", func(t *testing.T) {
		raw := provider.Record{
			"matchId": 900.0, "homeSquadName": "Falcons", "awaySquadName": "Eagles",
			"localStartTime": "2024-04-01 19:00:00", "roundNumber": 1.0,
		}
		row, matchID := ctx.FixtureRow(raw)
		require.Equal(t, "900", matchID)
		assert.Equal(t, "10343-900", row["uniqueFixtureId"])
		assert.Equal(t, "Falcons vs Eagles | 2024-04-01 19:00:00", row["matchName"])
		assert.Equal(t, 1.0, row["roundNumber"])
		_, mutated := raw["uniqueFixtureId"]
		assert.False(t, mutated, "raw record must not be modified")
	})

	t.Run("squad rows", func(t *testing.T) {
		rows := ctx.SquadRows(provider.Record{"homeSquadId": 7.0, "homeSquadName": "Falcons", "awaySquadId": 8.0})
		require.Len(t, rows, 2)
		assert.Equal(t, "7-Falcons", rows[0]["uniqueSquadId"])
		assert.Equal(t, "8-Unknown Squad", rows[1]["uniqueSquadId"])
	})

	t.Run("player entry defaults", func(t *testing.T) {
		id := Identity{PlayerID: "42", SquadID: "7", SquadName: "Falcons", Firstname: "Jo"}
		row := ctx.PlayerEntry(provider.Record{}, id)
		assert.Equal(t, "Unknown", row["surname"])
		assert.Equal(t, "Unknown", row["displayName"])
		assert.Equal(t, "42-7", row["uniquePlayerId"])
		assert.Equal(t, "7-Falcons", row["uniqueSquadId"])
	})

	t.Run("score flow row", func(t *testing.T) {
		id := Identity{PlayerID: "42", SquadID: "7", SquadName: "Falcons"}
		row := ctx.ScoreFlowRow("900", 2, provider.Record{"scorepoints": 1.0}, id)
		assert.Equal(t, "900_flow_2", row["scoreFlowId"])
		assert.Equal(t, "900-42", row["uniqueMatchId"])
		assert.Equal(t, 1.0, row["scorepoints"])
	})
}
