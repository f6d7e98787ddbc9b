package ledger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"github.com/albapepper/powerdata/internal/provider"
)

// File keeps the ledger as a JSON array on disk. Every operation holds an
// advisory lock on a sidecar "<path>.lock" file and reads the current file,
// so processes sharing one ledger see each other's changes. Changes are
// written through a temp file and rename.
type File struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	lock *flock.Flock
}

// lockRetry is the polling interval while another process holds the lock.
const lockRetry = 10 * time.Millisecond

// OpenFile opens the ledger at path, treating a missing or empty file as an
// empty ledger. A file written by older tooling as a bare array of IDs is
// accepted.
func OpenFile(path string) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create ledger dir %s", dir)
	}
	f := &File{path: path, now: time.Now, lock: flock.New(path + ".lock")}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// load reads the entries currently on disk.
func (f *File) load() ([]Entry, error) {
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, errors.Wrapf(err, "read ledger %s", f.path)
	}
	entries, err := decodeEntries(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode ledger %s", f.path)
	}
	return entries, nil
}

// locked runs fn with the in-process mutex and the file lock held, passing
// the entries on disk. Shared locks are taken for reads.
func (f *File) locked(ctx context.Context, exclusive bool, fn func([]Entry) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	try := f.lock.TryRLockContext
	if exclusive {
		try = f.lock.TryLockContext
	}
	ok, err := try(ctx, lockRetry)
	if err != nil {
		return errors.Wrapf(err, "lock ledger %s", f.path)
	}
	if !ok {
		return errors.Newf("lock ledger %s: not acquired", f.path)
	}
	defer func() { _ = f.lock.Unlock() }()

	entries, err := f.load()
	if err != nil {
		return err
	}
	return fn(entries)
}

func decodeEntries(data []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw []interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var entries []Entry
	seen := make(map[string]struct{})
	for _, item := range raw {
		var e Entry
		switch v := item.(type) {
		case map[string]interface{}:
			id, ok := provider.ExtractString(v["fixture_id"])
			if !ok {
				continue
			}
			e.FixtureID = id
			if n, ok := provider.ExtractInt(v["attempts"]); ok {
				e.Attempts = n
			}
			e.LastError, _ = v["last_error"].(string)
			e.AddedAt = parseTime(v["added_at"])
			e.UpdatedAt = parseTime(v["updated_at"])
		default:
			id, ok := provider.ExtractString(v)
			if !ok {
				continue
			}
			e = Entry{FixtureID: id, Attempts: 1}
		}
		if _, dup := seen[e.FixtureID]; dup {
			continue
		}
		seen[e.FixtureID] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Add implements Ledger.
func (f *File) Add(ctx context.Context, fixtureID, reason string) error {
	return f.locked(ctx, true, func(entries []Entry) error {
		now := f.now().UTC()
		for i := range entries {
			if entries[i].FixtureID == fixtureID {
				entries[i].Attempts++
				entries[i].LastError = reason
				entries[i].UpdatedAt = now
				return f.commit(entries)
			}
		}
		entries = append(entries, Entry{FixtureID: fixtureID, Attempts: 1, LastError: reason, AddedAt: now, UpdatedAt: now})
		return f.commit(entries)
	})
}

// Remove implements Ledger.
func (f *File) Remove(ctx context.Context, fixtureID string) error {
	return f.locked(ctx, true, func(entries []Entry) error {
		next := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.FixtureID != fixtureID {
				next = append(next, e)
			}
		}
		if len(next) == len(entries) {
			return nil
		}
		return f.commit(next)
	})
}

// Get implements Ledger.
func (f *File) Get(ctx context.Context, fixtureID string) (Entry, error) {
	var out Entry
	err := f.locked(ctx, false, func(entries []Entry) error {
		for _, e := range entries {
			if e.FixtureID == fixtureID {
				out = e
				return nil
			}
		}
		return errors.Wrapf(ErrNotFound, "fixture %s", fixtureID)
	})
	return out, err
}

// List implements Ledger.
func (f *File) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := f.locked(ctx, false, func(entries []Entry) error {
		out = entries
		return nil
	})
	return out, err
}

// commit replaces the file with entries. Callers hold the exclusive lock.
func (f *File) commit(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ledger")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".ledger-*.json")
	if err != nil {
		return errors.Wrap(err, "create ledger temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write ledger")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync ledger")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close ledger")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), f.path), "replace ledger %s", f.path)
}
