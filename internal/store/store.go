// Package store is the persistence gateway: a generic insert-or-update of one
// row into a named table, restricted to the columns that table actually has
// and keyed on its primary key.
//
// Backends (postgres, sqlite) supply a Conn, a Dialect and a SchemaLoader;
// Session does the rest so both speak exactly the same semantics.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNoSuchTable is returned when the target table cannot be introspected.
	ErrNoSuchTable = errors.New("table does not exist")
	// ErrNoColumns is returned when none of a row's eligible fields exist as
	// columns of the target table.
	ErrNoColumns = errors.New("no matching columns")
)

// Row is one logical record keyed by field name.
type Row map[string]interface{}

// FieldSpec lists the logical fields eligible for storage in one table.
type FieldSpec struct {
	Required []string `yaml:"required_fields" json:"required_fields" validate:"min=1,dive,required"`
	Optional []string `yaml:"optional_fields" json:"optional_fields" validate:"dive,required"`
}

// Fields returns required then optional fields, without duplicates.
func (f FieldSpec) Fields() []string {
	seen := make(map[string]struct{}, len(f.Required)+len(f.Optional))
	out := make([]string, 0, len(f.Required)+len(f.Optional))
	for _, list := range [][]string{f.Required, f.Optional} {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Store opens write transactions against a backing database.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx is one open transaction.
type Tx interface {
	// Upsert writes row into table restricted to spec's fields that exist as
	// columns. A primary-key conflict updates the non-key columns.
	Upsert(ctx context.Context, table string, row Row, spec FieldSpec) error
	// Batch runs fn inside a savepoint. When fn fails only its writes are
	// discarded and the transaction stays usable.
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
	// FindPlayers looks up player IDs in the directory table by name, and by
	// squad name when squadName is non-empty.
	FindPlayers(ctx context.Context, firstname, surname, squadName string) ([]string, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Options configures every backend.
type Options struct {
	// PlayerTable is the player directory used by FindPlayers.
	PlayerTable string
}

// DefaultPlayerTable is the directory table name when none is configured.
const DefaultPlayerTable = "player_info"

func (o Options) playerTable() string {
	if o.PlayerTable == "" {
		return DefaultPlayerTable
	}
	return o.PlayerTable
}
