// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/ingest and cmd/console.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// --------------------------------------------------------------------------
// Reference tables
// --------------------------------------------------------------------------

const (
	SportTable = "sport_info"
	SquadTable = "squad_info"
	// BrokenFixturesTable backs the Postgres ledger.
	BrokenFixturesTable = "broken_fixtures"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Storage
	StoreDriver    string `validate:"oneof=postgres sqlite"`
	DatabaseURL    string `validate:"required_if=StoreDriver postgres"`
	SQLitePath     string `validate:"required_if=StoreDriver sqlite"`
	DBPoolMinConns int    `validate:"gte=0"`
	DBPoolMaxConns int    `validate:"gte=1,gtefield=DBPoolMinConns"`
	DBPoolMaxLife  time.Duration

	// Broken-fixture ledger; defaults to postgres alongside a postgres store.
	LedgerBackend string `validate:"oneof=file postgres"`
	LedgerFile    string `validate:"required_if=LedgerBackend file"`

	// Field mapping override; empty uses the embedded default.
	FieldMappingFile string

	// Champion Data
	ChampionDataBaseURL string `validate:"required,url"`
	ChampionDataRPM     int    `validate:"gte=0"`
	ChampionDataTimeout time.Duration
	BreakerFailures     int `validate:"gte=1"`
	BreakerOpen         time.Duration

	// Orchestrator
	FetchParallel        int    `validate:"gte=0"`
	SquadKeyPolicy       string `validate:"oneof=fold id-only"`
	SkipUnmappedSports   bool
	PlayerDirectoryTable string `validate:"required"`
	// Squads whose fixtures are always classified as international netball.
	InternationalSquadIDs []string

	// Console
	ConsoleHost      string
	ConsolePort      int `validate:"gte=1,lte=65535"`
	CORSAllowOrigins []string

	LogLevel string `validate:"oneof=debug info warn error"`

	// OpenTelemetry export is enabled when OTelEndpoint is set.
	OTelEndpoint    string
	OTelServiceName string
}

var validate = validator.New()

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	driver := strings.ToLower(envOr("STORE_DRIVER", "postgres"))
	ledgerDefault := "file"
	if driver == "postgres" {
		ledgerDefault = "postgres"
	}

	cfg := &Config{
		StoreDriver:    driver,
		DatabaseURL:    envOr("DATABASE_URL", ""),
		SQLitePath:     envOr("SQLITE_PATH", "powerdata.db"),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 4),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		LedgerBackend: strings.ToLower(envOr("LEDGER_BACKEND", ledgerDefault)),
		LedgerFile:    envOr("LEDGER_FILE", "broken_fixtures.json"),

		FieldMappingFile: envOr("FIELD_MAPPING_FILE", ""),

		ChampionDataBaseURL: envOr("CHAMPIONDATA_BASE_URL", "https://mc.championdata.com/data"),
		ChampionDataRPM:     envInt("CHAMPIONDATA_RPM", 120),
		ChampionDataTimeout: time.Duration(envInt("CHAMPIONDATA_TIMEOUT_SECONDS", 30)) * time.Second,
		BreakerFailures:     envInt("CHAMPIONDATA_BREAKER_FAILURES", 5),
		BreakerOpen:         time.Duration(envInt("CHAMPIONDATA_BREAKER_OPEN_SECONDS", 60)) * time.Second,

		FetchParallel:        envInt("FETCH_PARALLEL", 1),
		SquadKeyPolicy:       strings.ToLower(envOr("SQUAD_KEY_POLICY", "fold")),
		SkipUnmappedSports:   envBool("SKIP_UNMAPPED_SPORTS", false),
		PlayerDirectoryTable: envOr("PLAYER_DIRECTORY_TABLE", "player_info"),
		InternationalSquadIDs: envList("INTERNATIONAL_SQUAD_IDS", nil),

		ConsoleHost: envOr("CONSOLE_HOST", "0.0.0.0"),
		ConsolePort: envInt("CONSOLE_PORT", envInt("PORT", 8000)),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		LogLevel: strings.ToLower(envOr("LOG_LEVEL", "info")),

		OTelEndpoint:    envOr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelServiceName: envOr("OTEL_SERVICE_NAME", "powerdata"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tag constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
