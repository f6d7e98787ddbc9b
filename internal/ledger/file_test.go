package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAddRemove(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "broken.json")

	l, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, l.Add(ctx, "10343", "sport insert failed"))
	require.NoError(t, l.Add(ctx, "10400", "fetch failed"))
	require.NoError(t, l.Add(ctx, "10343", "sport insert failed again"))

	ok, err := Contains(ctx, l, "10343")
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := l.Get(ctx, "10343")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, "sport insert failed again", e.LastError)

	ids, err := IDs(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"10343", "10400"}, ids)

	require.NoError(t, l.Remove(ctx, "10343"))
	require.NoError(t, l.Remove(ctx, "does-not-exist"))

	_, err = l.Get(ctx, "10343")
	assert.True(t, errors.Is(err, ErrNotFound))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	ids, err = IDs(ctx, reopened)
	require.NoError(t, err)
	assert.Equal(t, []string{"10400"}, ids)
}

func TestFileMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	l, err := OpenFile(filepath.Join(dir, "none.json"))
	require.NoError(t, err)
	entries, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = OpenFile(empty)
	require.NoError(t, err)
}

func TestFileLegacyIDList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BrokenFixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(`[10343, "10400", 10343]`), 0o644))

	l, err := OpenFile(path)
	require.NoError(t, err)
	ids, err := IDs(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, []string{"10343", "10400"}, ids)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestFileConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "broken.json")
	l, err := OpenFile(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Add(ctx, fmt.Sprintf("f%d", i), "boom"))
		}(i)
	}
	wg.Wait()

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	entries, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 20)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".ledger-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileInstancesShareOneLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "broken.json")

	console, err := OpenFile(path)
	require.NoError(t, err)
	cli, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, console.Add(ctx, "100", "sport insert failed"))
	require.NoError(t, cli.Add(ctx, "200", "fetch failed"))
	require.NoError(t, cli.Add(ctx, "100", "sport insert failed again"))

	ids, err := IDs(ctx, console)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "200"}, ids)

	e, err := console.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Attempts)

	require.NoError(t, console.Remove(ctx, "200"))
	ok, err := Contains(ctx, cli, "200")
	require.NoError(t, err)
	assert.False(t, ok)

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	ids, err = IDs(ctx, reopened)
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, ids)
}

func TestFileInstancesConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "broken.json")

	var ledgers []*File
	for i := 0; i < 2; i++ {
		l, err := OpenFile(path)
		require.NoError(t, err)
		ledgers = append(ledgers, l)
	}

	var wg sync.WaitGroup
	for n, l := range ledgers {
		for i := 0; i < 15; i++ {
			wg.Add(1)
			go func(l *File, id string) {
				defer wg.Done()
				assert.NoError(t, l.Add(ctx, id, "boom"))
			}(l, fmt.Sprintf("p%d-f%d", n, i))
		}
	}
	wg.Wait()

	entries, err := ledgers[0].List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 30)
}

func TestFileLockHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	holder, err := OpenFile(path)
	require.NoError(t, err)
	waiter, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, holder.lock.Lock())
	defer func() { _ = holder.lock.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = waiter.Add(ctx, "100", "boom")
	assert.Error(t, err)
}
