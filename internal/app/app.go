// Package app wires configuration into the store, ledger, fetchers and
// fixture loader shared by cmd/ingest and cmd/console.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/powerdata/internal/config"
	"github.com/albapepper/powerdata/internal/db"
	"github.com/albapepper/powerdata/internal/fixture"
	"github.com/albapepper/powerdata/internal/keys"
	"github.com/albapepper/powerdata/internal/ledger"
	"github.com/albapepper/powerdata/internal/provider/championdata"
	"github.com/albapepper/powerdata/internal/store"
	"github.com/albapepper/powerdata/internal/store/postgres"
	"github.com/albapepper/powerdata/internal/store/sqlite"
	"github.com/albapepper/powerdata/internal/telemetry"
)

// NewLogger returns a text logger on stdout at the configured level.
func NewLogger(level string) *slog.Logger { return newLogger(os.Stdout, level) }

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l, ReplaceAttr: flattenError}))
}

// flattenError renders error values by message so wrapped errors do not
// print their stack on every line.
func flattenError(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if err, ok := a.Value.Any().(error); ok {
		return slog.String(a.Key, err.Error())
	}
	return a
}

// App holds the long-lived components of one process.
type App struct {
	Config    *config.Config
	Fields    *config.FieldMapping
	Store     store.Store
	Ledger    ledger.Ledger
	Client    *championdata.Client
	Loader    *fixture.Loader
	Scheduler *fixture.Scheduler

	pool      *db.Pool
	telemetry *telemetry.Providers
	logger    *slog.Logger
}

// New builds every component from cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	fields, err := config.LoadFieldMapping(cfg.FieldMappingFile)
	if err != nil {
		return nil, err
	}
	a.Fields = fields

	opts := store.Options{PlayerTable: cfg.PlayerDirectoryTable}
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		a.Store = postgres.New(pool.Pool, opts, logger)
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath, opts, logger)
		if err != nil {
			return nil, err
		}
		a.Store = s
	default:
		return nil, errors.Newf("unknown store driver %q", cfg.StoreDriver)
	}

	switch cfg.LedgerBackend {
	case "file":
		f, err := ledger.OpenFile(cfg.LedgerFile)
		if err != nil {
			return nil, err
		}
		a.Ledger = f
	case "postgres":
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		pg := ledger.NewPostgres(pool.Pool, config.BrokenFixturesTable)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.Ledger = pg
	default:
		return nil, errors.Newf("unknown ledger backend %q", cfg.LedgerBackend)
	}

	a.Client = championdata.NewClient(championdata.Options{
		BaseURL:           cfg.ChampionDataBaseURL,
		RequestsPerMinute: cfg.ChampionDataRPM,
		Timeout:           cfg.ChampionDataTimeout,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerOpen:       cfg.BreakerOpen,
	}, logger)

	a.telemetry, err = telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		return nil, err
	}
	if a.telemetry != nil {
		logger.Info("OpenTelemetry export enabled", "endpoint", cfg.OTelEndpoint, "service", cfg.OTelServiceName)
	}
	metrics, err := telemetry.NewRecorder(nil, nil)
	if err != nil {
		return nil, err
	}

	a.Loader, err = fixture.NewLoader(a.Store, a.Ledger, fixture.Fetchers{
		FixtureList: a.Client.FixtureList(),
		BoxScore:    a.Client.BoxScore(),
		PeriodStats: a.Client.PeriodStats(),
		ScoreFlow:   a.Client.ScoreFlow(),
	}, championdata.NewClassifier(cfg.InternationalSquadIDs...), fixture.Options{
		Fields:        fields,
		SquadPolicy:   keys.SquadPolicy(cfg.SquadKeyPolicy),
		SkipUnmapped:  cfg.SkipUnmappedSports,
		FetchParallel: cfg.FetchParallel,
		PlayerTable:   cfg.PlayerDirectoryTable,
	}, metrics, logger)
	if err != nil {
		return nil, err
	}
	a.Scheduler = fixture.NewScheduler(a.Loader, a.Client.Competitions(), a.Ledger, logger)

	ok = true
	return a, nil
}

// postgresPool connects once and shares the pool between store and ledger.
func (a *App) postgresPool(ctx context.Context) (*db.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := db.New(ctx, a.Config)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	a.pool = pool
	return pool, nil
}

// Close flushes telemetry and releases the store and the database pool.
func (a *App) Close() {
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("Telemetry shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
