// Package sqlite is a file-backed persistence gateway for local runs and
// tests. It shares all upsert semantics with the Postgres gateway.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/albapepper/powerdata/internal/store"
)

// Store is a SQLite database opened through sqlx.
type Store struct {
	db     *sqlx.DB
	opts   store.Options
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path. SQLite allows one
// writer, so the pool is held to a single connection.
func Open(path string, opts store.Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	return &Store{db: db, opts: opts, logger: logger}, nil
}

// DB exposes the handle for schema setup and inspection.
func (s *Store) DB() *sqlx.DB { return s.db }

// Dialect quotes with double quotes and binds with ?.
type Dialect struct{}

func (Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (Dialect) Placeholder(int) string { return "?" }

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	c := conn{tx: tx}
	return &Tx{
		Session: store.NewSession(c, Dialect{}, c.loadSchema, s.opts, s.logger),
		tx:      tx,
	}, nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements store.Store.
func (s *Store) Close() error { return s.db.Close() }

// Tx is an open SQLite transaction.
type Tx struct {
	*store.Session
	tx *sqlx.Tx
}

// Commit implements store.Tx.
func (t *Tx) Commit(context.Context) error {
	return errors.Wrap(t.tx.Commit(), "commit")
}

// Rollback implements store.Tx.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "rollback")
	}
	return nil
}

type conn struct {
	tx *sqlx.Tx
}

func (c conn) Exec(ctx context.Context, q string, args ...interface{}) error {
	_, err := c.tx.ExecContext(ctx, q, args...)
	return err
}

func (c conn) QueryStrings(ctx context.Context, q string, args ...interface{}) ([]string, error) {
	var out []string
	if err := c.tx.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

type tableColumn struct {
	Name string `db:"name"`
	Type string `db:"type"`
	PK   int    `db:"pk"`
}

func (c conn) loadSchema(ctx context.Context, table string) (*store.Schema, error) {
	var info []tableColumn
	if err := c.tx.SelectContext(ctx, &info, `SELECT name, type, pk FROM pragma_table_info(?)`, table); err != nil {
		return nil, errors.Wrapf(err, "introspect %s", table)
	}
	if len(info) == 0 {
		return nil, errors.Wrapf(store.ErrNoSuchTable, "table %s", table)
	}

	cols := make([]store.Column, 0, len(info))
	pkIdx := map[int]string{}
	for _, ci := range info {
		cols = append(cols, store.Column{Name: ci.Name, Kind: store.KindOf(ci.Type)})
		if ci.PK > 0 {
			pkIdx[ci.PK] = ci.Name
		}
	}
	pk := make([]string, 0, len(pkIdx))
	for i := 1; i <= len(pkIdx); i++ {
		if name, ok := pkIdx[i]; ok {
			pk = append(pk, name)
		}
	}
	return store.NewSchema(table, cols, pk), nil
}
