package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

// Conn is the statement surface a backend transaction exposes to Session.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	// QueryStrings runs a single-column query and returns its values as text.
	QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error)
}

// SchemaLoader introspects a table. It returns ErrNoSuchTable when the
// table is missing.
type SchemaLoader func(ctx context.Context, table string) (*Schema, error)

// Session implements the backend-independent half of Tx on top of a Conn.
// Schemas are cached for the life of the session.
type Session struct {
	conn    Conn
	dialect Dialect
	load    SchemaLoader
	opts    Options
	logger  *slog.Logger

	schemas    map[string]*Schema
	savepoints int
}

// NewSession wraps an open backend transaction.
func NewSession(conn Conn, d Dialect, load SchemaLoader, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		conn:    conn,
		dialect: d,
		load:    load,
		opts:    opts,
		logger:  logger,
		schemas: make(map[string]*Schema),
	}
}

// Schema returns the cached shape of table, loading it on first use.
func (s *Session) Schema(ctx context.Context, table string) (*Schema, error) {
	key := strings.ToLower(table)
	if sc, ok := s.schemas[key]; ok {
		return sc, nil
	}
	sc, err := s.load(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(sc.Columns) == 0 {
		return nil, errors.Wrapf(ErrNoSuchTable, "table %s", table)
	}
	s.schemas[key] = sc
	return sc, nil
}

// Upsert implements Tx.
func (s *Session) Upsert(ctx context.Context, table string, row Row, spec FieldSpec) error {
	sc, err := s.Schema(ctx, table)
	if err != nil {
		return err
	}

	for _, f := range spec.Required {
		if _, ok := sc.Lookup(f); !ok {
			s.logger.Warn("Required field has no column", "table", table, "field", f)
		}
	}

	var (
		cols []string
		args []interface{}
		used = make(map[string]struct{})
	)
	for _, field := range spec.Fields() {
		col, ok := sc.Lookup(field)
		if !ok {
			continue
		}
		if _, dup := used[col.Name]; dup {
			continue
		}
		used[col.Name] = struct{}{}

		v, err := Coerce(col.Kind, lookupValue(row, field))
		if err != nil {
			return errors.Wrapf(err, "%s.%s", table, col.Name)
		}
		cols = append(cols, col.Name)
		args = append(args, v)
	}
	if len(cols) == 0 {
		return errors.Wrapf(ErrNoColumns, "table %s", table)
	}

	q := BuildUpsert(s.dialect, sc.Table, cols, sc.PrimaryKey)
	if err := s.conn.Exec(ctx, q, args...); err != nil {
		return errors.Wrapf(err, "upsert %s", table)
	}
	return nil
}

// lookupValue fetches a field, falling back to a case-insensitive match.
func lookupValue(row Row, field string) interface{} {
	if v, ok := row[field]; ok {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, field) {
			return v
		}
	}
	return nil
}

// Batch implements Tx.
func (s *Session) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	s.savepoints++
	name := fmt.Sprintf("sp_%d", s.savepoints)

	if err := s.conn.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return errors.Wrap(err, "open savepoint")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = s.conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
			_ = s.conn.Exec(ctx, "RELEASE SAVEPOINT "+name)
			panic(p)
		}
	}()

	if ferr := fn(ctx); ferr != nil {
		if rerr := s.conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rerr != nil {
			return errors.CombineErrors(ferr, errors.Wrap(rerr, "rollback savepoint"))
		}
		if rerr := s.conn.Exec(ctx, "RELEASE SAVEPOINT "+name); rerr != nil {
			return errors.CombineErrors(ferr, errors.Wrap(rerr, "release savepoint"))
		}
		return ferr
	}

	if err := s.conn.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return errors.Wrap(err, "release savepoint")
	}
	return nil
}

// FindPlayers implements Tx against the configured directory table.
func (s *Session) FindPlayers(ctx context.Context, firstname, surname, squadName string) ([]string, error) {
	table := s.opts.playerTable()
	sc, err := s.Schema(ctx, table)
	if err != nil {
		return nil, err
	}

	col := func(field string) (string, error) {
		c, ok := sc.Lookup(field)
		if !ok {
			return "", errors.Newf("player directory %s has no %s column", table, field)
		}
		return s.dialect.Quote(c.Name), nil
	}
	idCol, err := col("playerId")
	if err != nil {
		return nil, err
	}
	firstCol, err := col("firstname")
	if err != nil {
		return nil, err
	}
	lastCol, err := col("surname")
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(
		"SELECT CAST(%s AS TEXT) FROM %s WHERE LOWER(TRIM(%s)) = LOWER(%s) AND LOWER(TRIM(%s)) = LOWER(%s)",
		idCol, s.dialect.Quote(sc.Table), firstCol, s.dialect.Placeholder(1), lastCol, s.dialect.Placeholder(2))
	args := []interface{}{strings.TrimSpace(firstname), strings.TrimSpace(surname)}

	if squadName != "" {
		if squadCol, err := col("squadName"); err == nil {
			q += fmt.Sprintf(" AND LOWER(TRIM(%s)) = LOWER(%s)", squadCol, s.dialect.Placeholder(3))
			args = append(args, strings.TrimSpace(squadName))
		} else {
			s.logger.Debug("Player directory has no squad column, ignoring squad constraint", "table", table)
		}
	}

	ids, err := s.conn.QueryStrings(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "find players")
	}
	return ids, nil
}
