package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/collection-backup/internal/config"
)

func TestLocalPutGetListDelete(t *testing.T) {
	ctx := context.Background()
	st, err := New(config.StorageConfig{Path: t.TempDir()})
	require.NoError(t, err)

	items, err := st.List(ctx, "partial")
	require.NoError(t, err)
	assert.Empty(t, items)

	key := "partial/20260504T120000Z_partial.json"
	require.NoError(t, st.Put(ctx, key, strings.NewReader(`{"collections":{}}`)))
	require.NoError(t, st.Put(ctx, ManifestKey(key), strings.NewReader(`{}`)))

	ok, err := st.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := st.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, `{"collections":{}}`, string(body))

	info, err := st.Stat(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, len(body), info.Size)
	assert.False(t, info.IsManifest)

	items, err = st.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, key, items[0].Key)
	assert.True(t, items[1].IsManifest)

	require.NoError(t, st.Delete(ctx, key))
	ok, err = st.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalPutOverwrites(t *testing.T) {
	ctx := context.Background()
	st := NewLocal(t.TempDir())
	require.NoError(t, st.Put(ctx, "a/b.json", strings.NewReader("first")))
	require.NoError(t, st.Put(ctx, "a/b.json", strings.NewReader("second")))

	rc, err := st.Get(ctx, "a/b.json")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(body))

	items, err := st.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(config.StorageConfig{})
	require.Error(t, err)
}
