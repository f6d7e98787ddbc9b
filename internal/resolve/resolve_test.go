package resolve

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	id, first, last, squad string
}

type memDirectory struct {
	entries []entry
	calls   int
	err     error
}

func (d *memDirectory) FindPlayers(_ context.Context, firstname, surname, squadName string) ([]string, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for _, e := range d.entries {
		if !strings.EqualFold(e.first, firstname) || !strings.EqualFold(e.last, surname) {
			continue
		}
		if squadName != "" && !strings.EqualFold(e.squad, squadName) {
			continue
		}
		out = append(out, e.id)
	}
	return out, nil
}

func TestResolve(t *testing.T) {
	dir := &memDirectory{entries: []entry{{"42", "Jo", "Blow", "Falcons"}}}
	r := New(dir, nil)
	ctx := context.Background()

	id, ok, err := r.Resolve(ctx, "Jo", "Blow", "Falcons")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	_, ok, err = r.Resolve(ctx, "Jo", "Blow", "Eagles")
	require.NoError(t, err)
	assert.False(t, ok)

	id, ok, err = r.Resolve(ctx, "Jo", "Blow", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	id, ok, err = r.Resolve(ctx, " jo ", "BLOW", "Unknown Squad")
	require.NoError(t, err)
	assert.True(t, ok, "default squad name must not constrain")
	assert.Equal(t, "42", id)
}

func TestResolveAmbiguousTakesLowestID(t *testing.T) {
	dir := &memDirectory{entries: []entry{
		{"1003", "Sam", "Lee", "Falcons"},
		{"99", "Sam", "Lee", "Eagles"},
		{"250", "Sam", "Lee", "Falcons"},
		{"0", "Sam", "Lee", "Falcons"},
	}}
	r := New(dir, nil)

	id, ok, err := r.Resolve(context.Background(), "Sam", "Lee", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "99", id)

	id, ok, err = r.Resolve(context.Background(), "Sam", "Lee", "Falcons")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "250", id)
}

func TestResolveMissingNameSkipsLookup(t *testing.T) {
	dir := &memDirectory{}
	r := New(dir, nil)

	_, ok, err := r.Resolve(context.Background(), "", "Blow", "Falcons")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, dir.calls)
}

func TestResolveQueriesEveryCall(t *testing.T) {
	dir := &memDirectory{}
	r := New(dir, nil)
	for i := 0; i < 3; i++ {
		_, _, _ = r.Resolve(context.Background(), "No", "Body", "")
	}
	assert.Equal(t, 3, dir.calls)
}

func TestResolveDirectoryError(t *testing.T) {
	boom := errors.New("connection reset")
	r := New(&memDirectory{err: boom}, nil)

	_, ok, err := r.Resolve(context.Background(), "Jo", "Blow", "")
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, boom))
}

func TestCandidates(t *testing.T) {
	got := candidates([]string{"10", " 9 ", "x", "10", "0", "100"})
	assert.Equal(t, []string{"9", "10", "100"}, got)
}
