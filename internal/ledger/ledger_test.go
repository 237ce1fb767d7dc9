package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestLedger_RecordAndListForBox(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store)

			entries, err := l.ListForBox(ctx, "box-a")
			require.NoError(t, err)
			assert.Empty(t, entries)

			require.NoError(t, l.Record(ctx, "box-a", "CPL-AAAAAAAAAA"))
			require.NoError(t, l.Record(ctx, "box-b", "CPL-BBBBBBBBBB"))
			require.NoError(t, l.Record(ctx, "box-a", "CPL-CCCCCCCCCC"))

			entries, err = l.ListForBox(ctx, "box-a")
			require.NoError(t, err)
			assert.Equal(t, []string{"CPL-AAAAAAAAAA", "CPL-CCCCCCCCCC"}, Tokens(entries))
			for _, e := range entries {
				assert.Equal(t, "box-a", e.BoxID)
				assert.False(t, e.RecordedAt.IsZero())
			}

			all, err := l.Entries(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestLedger_NoDeduplication(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())

	require.NoError(t, l.Record(ctx, "box-a", "CPL-AAAAAAAAAA"))
	require.NoError(t, l.Record(ctx, "box-a", "CPL-AAAAAAAAAA"))

	entries, err := l.ListForBox(ctx, "box-a")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLedger_RejectsBlank(t *testing.T) {
	l := New(NewMemoryStore())
	assert.Error(t, l.Record(context.Background(), "", "CPL-AAAAAAAAAA"))
	assert.Error(t, l.Record(context.Background(), "box", ""))
}

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, New(first).Record(ctx, "box-a", "CPL-AAAAAAAAAA"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	entries, err := New(second).ListForBox(ctx, "box-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"CPL-AAAAAAAAAA"}, Tokens(entries))
}

func TestLedger_CorruptValueIsReported(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, Key, []byte("not json")))

			l := New(store)
			_, err := l.Entries(ctx)
			assert.ErrorIs(t, err, ErrCorrupt)
			_, err = l.ListForBox(ctx, "box-a")
			assert.ErrorIs(t, err, ErrCorrupt)

			err = l.Record(ctx, "box-a", "CPL-AAAAAAAAAA")
			require.ErrorIs(t, err, ErrCorrupt)
			raw, err := store.Get(ctx, Key)
			require.NoError(t, err)
			assert.Equal(t, "not json", string(raw), "a failed record must not overwrite the stored list")

			require.NoError(t, l.Reset(ctx))
			require.NoError(t, l.Record(ctx, "box-a", "CPL-AAAAAAAAAA"))
			entries, err := l.Entries(ctx)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(context.Background(), "k", []byte("v1")))
	require.NoError(t, s.Put(context.Background(), "k", []byte("v2")))
	v, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(v))

	require.NoError(t, s.Delete(context.Background(), "k"))
	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
