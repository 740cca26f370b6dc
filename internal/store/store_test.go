package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/collection-backup/internal/config"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestStoreReplaceAndGet(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(ctx, "customers")
			require.ErrorIs(t, err, ErrNotFound)

			records := []Record{{"id": "c1", "name": "Ada"}, {"id": "c2", "name": "Grace"}}
			require.NoError(t, st.ReplaceAll(ctx, "customers", records))
			require.NoError(t, st.ReplaceAll(ctx, "sales", nil))

			got, err := st.Get(ctx, "customers")
			require.NoError(t, err)
			assert.Equal(t, records, got)

			empty, err := st.Get(ctx, "sales")
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			require.NoError(t, st.ReplaceAll(ctx, "customers", []Record{{"id": "c3"}}))
			got, err = st.Get(ctx, "customers")
			require.NoError(t, err)
			assert.Equal(t, []Record{{"id": "c3"}}, got)

			names, err := st.(Lister).Collections(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"customers", "sales"}, names)
		})
	}
}

func TestMemoryNonSequence(t *testing.T) {
	st := NewMemory()
	st.Set("settings", map[string]any{"theme": "dark"})
	st.Set("mixed", []any{map[string]any{"a": 1.0}, "oops"})

	_, err := st.Get(context.Background(), "settings")
	require.ErrorIs(t, err, ErrNotSequence)
	_, err = st.Get(context.Background(), "mixed")
	require.ErrorIs(t, err, ErrNotSequence)
}

func TestSQLiteNonSequence(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.PutRaw(ctx, "settings", []byte(`{"theme":"dark"}`)))
	_, err = st.Get(ctx, "settings")
	require.ErrorIs(t, err, ErrNotSequence)

	require.Error(t, st.PutRaw(ctx, "broken", []byte(`{nope`)))
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	require.NoError(t, st.ReplaceAll(ctx, "customers", []Record{{"id": "c1"}}))

	got, err := st.Get(ctx, "customers")
	require.NoError(t, err)
	got[0] = Record{"id": "changed"}

	again, err := st.Get(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, "c1", again[0]["id"])
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	st, err := New(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	st, err = New(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	require.NoError(t, st.(*SQLite).Close())

	_, err = New(ctx, config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
}
