package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/collection-backup/internal/store"
)

func TestReaderSkipsUnavailableCollections(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	require.NoError(t, st.ReplaceAll(ctx, "customers", []store.Record{{"id": "c1"}}))
	require.NoError(t, st.ReplaceAll(ctx, "sales", nil))
	st.Set("settings", map[string]any{"theme": "dark"})
	st.getErr["workOrders"] = errBoom

	reader := &Reader{Store: st, Log: nopLog()}
	res, err := reader.Read(ctx, []string{"customers", "sales", "settings", "workOrders", "missing", "customers", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "sales"}, res.Snapshot.Names())
	assert.NotNil(t, res.Snapshot["sales"])
	assert.Empty(t, res.Snapshot["sales"])

	var skipped []string
	for _, u := range res.Unavailable {
		skipped = append(skipped, u.Collection)
	}
	assert.Equal(t, []string{"missing", "settings", "workOrders"}, skipped)
	assert.ErrorIs(t, res.Unavailable[0], store.ErrNotFound)
	assert.ErrorIs(t, res.Unavailable[1], store.ErrNotSequence)
	assert.ErrorIs(t, res.Unavailable[2], errBoom)
}

func TestReaderFansOutWithinLimit(t *testing.T) {
	ctx := context.Background()
	st := newFaultyStore()
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, name := range names {
		require.NoError(t, st.ReplaceAll(ctx, name, []store.Record{{"id": name}}))
	}

	reader := &Reader{Store: st, Log: nopLog(), Parallelism: 3}
	res, err := reader.Read(ctx, names)
	require.NoError(t, err)
	assert.Len(t, res.Snapshot, len(names))
	assert.LessOrEqual(t, st.peak.Load(), int32(3))
	assert.Greater(t, st.peak.Load(), int32(1))
}

func TestReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := &Reader{Store: store.NewMemory(), Log: nopLog()}
	_, err := reader.Read(ctx, []string{"customers"})
	require.ErrorIs(t, err, context.Canceled)
}
