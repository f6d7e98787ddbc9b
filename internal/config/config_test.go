package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "x.db"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "file", cfg.LedgerBackend)
	assert.Equal(t, "fold", cfg.SquadKeyPolicy)
	assert.False(t, cfg.SkipUnmappedSports)
	assert.Equal(t, "player_info", cfg.PlayerDirectoryTable)
	assert.Equal(t, "https://mc.championdata.com/data", cfg.ChampionDataBaseURL)
	assert.Equal(t, 30*time.Second, cfg.ChampionDataTimeout)
	assert.Equal(t, 1, cfg.FetchParallel)
	assert.Empty(t, cfg.OTelEndpoint)
	assert.Equal(t, "powerdata", cfg.OTelServiceName)
}

func TestLedgerFollowsPostgresStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/powerdata")
	t.Setenv("LEDGER_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.LedgerBackend)

	t.Setenv("LEDGER_BACKEND", "file")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.LedgerBackend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/powerdata")
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("SQUAD_KEY_POLICY", "ID-ONLY")
	t.Setenv("SKIP_UNMAPPED_SPORTS", "true")
	t.Setenv("FETCH_PARALLEL", "4")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "id-only", cfg.SquadKeyPolicy)
	assert.True(t, cfg.SkipUnmappedSports)
	assert.Equal(t, 4, cfg.FetchParallel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.Equal(t, "http://collector:4317", cfg.OTelEndpoint)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unknown squad policy", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		t.Setenv("SQUAD_KEY_POLICY", "drop")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mysql")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestSportID(t *testing.T) {
	id, ok := SportID("  Netball   Womens AUSTRALIA ")
	require.True(t, ok)
	assert.Equal(t, "9", id)

	id, ok = SportID("NRL Unknown")
	require.True(t, ok)
	assert.Equal(t, "12", id)

	_, ok = SportID("Basketball")
	assert.False(t, ok)
	assert.Len(t, SportIDs, 12)
}

func TestDefaultFieldMapping(t *testing.T) {
	m, err := DefaultFieldMapping()
	require.NoError(t, err)
	assert.Contains(t, m.Sport.Required, "uniqueSportId")
	assert.Contains(t, m.Match.Required, "uniqueMatchId")
	assert.Contains(t, m.ScoreFlow.Required, "scoreFlowId")
	assert.Contains(t, m.Player.Optional, "uniquePlayerId")
}

func TestLoadFieldMappingJSON(t *testing.T) {
	doc := `{
  "sport_fields": {"required_fields": ["uniqueSportId"], "optional_fields": []},
  "squad_fields": {"required_fields": ["uniqueSquadId"], "optional_fields": ["squadName"]},
  "player_fields": {"required_fields": ["playerId"]},
  "fixture_fields": {"required_fields": ["uniqueFixtureId"]},
  "match_fields": {"required_fields": ["uniqueMatchId"]},
  "period_fields": {"required_fields": ["uniquePeriodId"]},
  "score_flow_fields": {"required_fields": ["scoreFlowId"]}
  }`
	path := filepath.Join(t.TempDir(), "fields.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadFieldMapping(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"squadName"}, m.Squad.Optional)
	assert.Equal(t, []string{"scoreFlowId"}, m.ScoreFlow.Required)
}

func TestParseFieldMappingRejects(t *testing.T) {
	_, err := ParseFieldMapping([]byte("sport_fields:\n  required_fields: []\n"))
	assert.Error(t, err, "empty required list")

	_, err = ParseFieldMapping([]byte("sprot_fields:\n  required_fields: [a]\n"))
	assert.Error(t, err, "unknown key")

	_, err = LoadFieldMapping(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
