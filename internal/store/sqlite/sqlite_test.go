package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/powerdata/internal/store"
)

const testSchema = `
CREATE TABLE squad_info (
	uniqueSquadId TEXT PRIMARY KEY,
	squadId INTEGER,
	squadName TEXT
);
CREATE TABLE player_info (
	playerId INTEGER PRIMARY KEY,
	firstname TEXT,
	surname TEXT,
	squadName TEXT
);
CREATE TABLE period_stats (
	matchId TEXT,
	period INTEGER,
	goals INTEGER CHECK (goals >= 0),
	extra TEXT,
	PRIMARY KEY (matchId, period)
);
CREATE TABLE events (note TEXT);
`

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), store.Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.DB().MustExec(testSchema)
	return s
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	spec := store.FieldSpec{Required: []string{"uniqueSquadId", "squadId"}, Optional: []string{"squadName", "nickname"}}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Upsert(ctx, "squad_info", store.Row{"uniqueSquadId": "7-Falcons", "squadId": 7.0, "squadName": "Falcons"}, spec))
	require.NoError(t, tx.Upsert(ctx, "squad_info", store.Row{"uniqueSquadId": "7-Falcons", "squadId": "7", "squadName": "Falcons FC"}, spec))
	require.NoError(t, tx.Commit(ctx))

	var rows []struct {
		ID   string `db:"uniqueSquadId"`
		Name string `db:"squadName"`
	}
	require.NoError(t, s.DB().Select(&rows, `SELECT uniqueSquadId, squadName FROM squad_info`))
	require.Len(t, rows, 1)
	assert.Equal(t, "Falcons FC", rows[0].Name)
}

func TestUpsertCompositeKeyAndCaseInsensitiveColumns(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	spec := store.FieldSpec{Required: []string{"MATCHID", "period"}, Optional: []string{"goals"}}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, tx.Upsert(ctx, "period_stats", store.Row{"MATCHID": "900", "period": 1.0, "goals": float64(3 + i)}, spec))
	}
	require.NoError(t, tx.Commit(ctx))

	var goals []int
	require.NoError(t, s.DB().Select(&goals, `SELECT goals FROM period_stats`))
	assert.Equal(t, []int{4}, goals)
}

func TestUpsertWithoutPrimaryKeyInserts(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	spec := store.FieldSpec{Required: []string{"note"}}
	require.NoError(t, tx.Upsert(ctx, "events", store.Row{"note": "a"}, spec))
	require.NoError(t, tx.Upsert(ctx, "events", store.Row{"note": "a"}, spec))
	require.NoError(t, tx.Commit(ctx))

	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT COUNT(*) FROM events`))
	assert.Equal(t, 2, n)
}

func TestUpsertMissingTable(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.Upsert(ctx, "nope", store.Row{"a": 1.0}, store.FieldSpec{Required: []string{"a"}})
	assert.True(t, errors.Is(err, store.ErrNoSuchTable))
}

func TestBatchDiscardsOnlyFailedBatch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	spec := store.FieldSpec{Required: []string{"matchId", "period", "goals"}}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Batch(ctx, func(ctx context.Context) error {
		return tx.Upsert(ctx, "period_stats", store.Row{"matchId": "900", "period": 1.0, "goals": 2.0}, spec)
	}))

	err = tx.Batch(ctx, func(ctx context.Context) error {
		if err := tx.Upsert(ctx, "period_stats", store.Row{"matchId": "901", "period": 1.0, "goals": 1.0}, spec); err != nil {
			return err
		}
		return tx.Upsert(ctx, "period_stats", store.Row{"matchId": "901", "period": 2.0, "goals": -1.0}, spec)
	})
	require.Error(t, err, "check constraint must fail")

	require.NoError(t, tx.Commit(ctx))

	var ids []string
	require.NoError(t, s.DB().Select(&ids, `SELECT matchId FROM period_stats ORDER BY matchId`))
	assert.Equal(t, []string{"900"}, ids)
}

func TestRollbackDiscardsEverything(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Upsert(ctx, "events", store.Row{"note": "x"}, store.FieldSpec{Required: []string{"note"}}))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx), "second rollback is a no-op")

	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT COUNT(*) FROM events`))
	assert.Zero(t, n)
}

func TestFindPlayers(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	s.DB().MustExec(`INSERT INTO player_info VALUES (42, 'Jo', 'Blow', 'Falcons'), (7, 'jo', 'BLOW ', 'Eagles')`)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	ids, err := tx.FindPlayers(ctx, "Jo", "Blow", "falcons")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)

	ids, err = tx.FindPlayers(ctx, "Jo", "Blow", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"42", "7"}, ids)

	ids, err = tx.FindPlayers(ctx, "Jo", "Blow", "Hawks")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
