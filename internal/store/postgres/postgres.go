// Package postgres is the production persistence gateway on pgx.
package postgres

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/powerdata/internal/store"
)

// Store opens transactions on a pgx pool. It does not own the pool.
type Store struct {
	pool   *pgxpool.Pool
	opts   store.Options
	logger *slog.Logger
}

// New wraps pool.
func New(pool *pgxpool.Pool, opts store.Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, opts: opts, logger: logger}
}

// Dialect quotes with pgx and binds with $n.
type Dialect struct{}

func (Dialect) Quote(ident string) string { return pgx.Identifier{ident}.Sanitize() }
func (Dialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
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
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close is a no-op; the pool belongs to the caller.
func (s *Store) Close() error { return nil }

// Tx is an open pgx transaction.
type Tx struct {
	*store.Session
	tx pgx.Tx
}

// Commit implements store.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	return errors.Wrap(t.tx.Commit(ctx), "commit")
}

// Rollback implements store.Tx. Rolling back a finished transaction is not
// an error.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errors.Wrap(err, "rollback")
	}
	return nil
}

type conn struct {
	tx pgx.Tx
}

func (c conn) Exec(ctx context.Context, q string, args ...interface{}) error {
	_, err := c.tx.Exec(ctx, q, args...)
	return err
}

func (c conn) QueryStrings(ctx context.Context, q string, args ...interface{}) ([]string, error) {
	rows, err := c.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const columnsSQL = `
	SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1
	ORDER BY ordinal_position`

const primaryKeySQL = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name
	 AND kcu.table_schema = tc.table_schema
	 AND kcu.table_name = tc.table_name
	WHERE tc.constraint_type = 'PRIMARY KEY'
	  AND tc.table_schema = current_schema()
	  AND tc.table_name = $1
	ORDER BY kcu.ordinal_position`

func (c conn) loadSchema(ctx context.Context, table string) (*store.Schema, error) {
	rows, err := c.tx.Query(ctx, columnsSQL, table)
	if err != nil {
		return nil, errors.Wrapf(err, "introspect %s", table)
	}
	var cols []store.Column
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "scan column of %s", table)
		}
		cols = append(cols, store.Column{Name: name, Kind: store.KindOf(dataType)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "introspect %s", table)
	}
	if len(cols) == 0 {
		return nil, errors.Wrapf(store.ErrNoSuchTable, "table %s", table)
	}

	pkRows, err := c.tx.Query(ctx, primaryKeySQL, table)
	if err != nil {
		return nil, errors.Wrapf(err, "primary key of %s", table)
	}
	pk, err := pgx.CollectRows(pkRows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrapf(err, "primary key of %s", table)
	}

	return store.NewSchema(table, cols, pk), nil
}
