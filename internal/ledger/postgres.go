package ledger

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool the Postgres ledger needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// Postgres keeps the ledger in a table. Each statement is atomic on its own,
// so concurrent runs cannot lose each other's entries.
type Postgres struct {
	q     Querier
	table string
}

// NewPostgres returns a ledger on table.
func NewPostgres(q Querier, table string) *Postgres {
	return &Postgres{q: q, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the ledger table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+p.table+` (
			fixture_id TEXT PRIMARY KEY,
			attempts   INTEGER NOT NULL DEFAULT 1,
			last_error TEXT,
			added_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return errors.Wrap(err, "create ledger table")
}

// Add implements Ledger.
func (p *Postgres) Add(ctx context.Context, fixtureID, reason string) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO `+p.table+` (fixture_id, attempts, last_error)
		VALUES ($1, 1, $2)
		ON CONFLICT (fixture_id) DO UPDATE
		SET attempts = `+p.table+`.attempts + 1,
			last_error = excluded.last_error,
			updated_at = NOW()`, fixtureID, reason)
	return errors.Wrapf(err, "add fixture %s to ledger", fixtureID)
}

// Remove implements Ledger.
func (p *Postgres) Remove(ctx context.Context, fixtureID string) error {
	_, err := p.q.Exec(ctx, `DELETE FROM `+p.table+` WHERE fixture_id = $1`, fixtureID)
	return errors.Wrapf(err, "remove fixture %s from ledger", fixtureID)
}

const entryColumns = `fixture_id, attempts, COALESCE(last_error, ''), added_at, updated_at`

// Get implements Ledger.
func (p *Postgres) Get(ctx context.Context, fixtureID string) (Entry, error) {
	var e Entry
	err := p.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM `+p.table+` WHERE fixture_id = $1`, fixtureID).
		Scan(&e.FixtureID, &e.Attempts, &e.LastError, &e.AddedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, errors.Wrapf(ErrNotFound, "fixture %s", fixtureID)
	}
	if err != nil {
		return Entry{}, errors.Wrapf(err, "get fixture %s from ledger", fixtureID)
	}
	return e, nil
}

// List implements Ledger.
func (p *Postgres) List(ctx context.Context) ([]Entry, error) {
	rows, err := p.q.Query(ctx, `SELECT `+entryColumns+` FROM `+p.table+` ORDER BY added_at, fixture_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger")
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.FixtureID, &e.Attempts, &e.LastError, &e.AddedAt, &e.UpdatedAt)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list ledger")
	}
	return entries, nil
}
