package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/collection-backup/internal/backup"
	"github.com/rowjay/collection-backup/internal/config"
	"github.com/rowjay/collection-backup/internal/storage"
	"github.com/rowjay/collection-backup/internal/store"
)

func newTestApp(t *testing.T) (*App, *store.Memory) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Global: config.GlobalConfig{LockFile: filepath.Join(dir, "cbu.lock")},
		Store:  config.StoreConfig{Driver: "memory"},
		Backup: config.BackupConfig{
			EventsCollection: "calendarEvents",
			Source:           "test",
			Compression:      "none",
			MaxParallelism:   4,
			MaxPayloadBytes:  config.DefaultMaxPayloadBytes,
		},
		Storage: config.StorageConfig{Path: filepath.Join(dir, "backups")},
	}
	mem := store.NewMemory()
	mem.Set("customers", []any{
		map[string]any{"id": "c1", "name": "Ada"},
		map[string]any{"id": "c2", "name": "Grace"},
	})
	mem.Set("sales", []any{map[string]any{"id": "s1", "total": 12.5}})
	mem.Set("calendarEvents", []any{
		map[string]any{"id": "e1", "type": "parts"},
		map[string]any{"id": "e2", "type": "event"},
		map[string]any{"id": "e3", "type": "schedule"},
	})
	artifacts, err := storage.New(cfg.Storage)
	require.NoError(t, err)
	return New(cfg, mem, artifacts, backup.DefaultTiles("calendarEvents"), zerolog.Nop()), mem
}

func TestExportAllPlainThenRestore(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()

	res, err := a.Export(ctx, ExportRequest{All: true, Note: "nightly"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Key, ".json"))
	assert.Equal(t, "comprehensive", res.Manifest.Kind)
	assert.Equal(t, []string{"calendarEvents", "customers", "sales"}, res.Manifest.Collections)
	assert.Equal(t, 5, res.Manifest.TotalRecords)
	assert.NotEmpty(t, res.Manifest.ID)

	raw, err := a.ReadBackup(ctx, res.Key)
	require.NoError(t, err)
	summary, err := a.Preview(raw, "")
	require.NoError(t, err)
	assert.True(t, summary.IsComprehensive)
	assert.False(t, summary.Encrypted)

	require.NoError(t, mem.ReplaceAll(ctx, "customers", nil))
	report, err := a.Restore(ctx, raw, RestoreRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"calendarEvents", "customers", "sales"}, report.Restored)

	customers, err := mem.Get(ctx, "customers")
	require.NoError(t, err)
	assert.Len(t, customers, 2)
}

func TestExportEncryptedSelection(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	res, err := a.Export(ctx, ExportRequest{
		Selection: []string{"calendarEvents"},
		Encrypt:   true,
		Password:  "correct horse",
		Confirm:   "correct horse",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Key, "."+backup.EncryptedExtension))
	assert.True(t, res.Manifest.Encrypted)
	assert.Equal(t, []string{"calendarParts", "calendarEvents"}, res.Manifest.Tiles)

	raw, err := a.ReadBackup(ctx, res.Key)
	require.NoError(t, err)
	assert.True(t, backup.IsEncrypted(raw))

	_, err = a.Preview(raw, "")
	assert.ErrorIs(t, err, backup.ErrPasswordRequired)

	_, err = a.Preview(raw, "wrong")
	assert.ErrorIs(t, err, backup.ErrInvalidBackup)

	summary, err := a.Preview(raw, "correct horse")
	require.NoError(t, err)
	assert.False(t, summary.IsComprehensive)
	assert.Equal(t, map[string]int{"calendarEvents": 2}, summary.Counts)
}

func TestExportPasswordMismatchWritesNothing(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	_, err := a.Export(ctx, ExportRequest{All: true, Encrypt: true, Password: "a", Confirm: "b"})
	require.ErrorIs(t, err, backup.ErrPasswordMismatch)

	entries, err := a.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportEmptySelection(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.Export(context.Background(), ExportRequest{Selection: []string{"nope"}})
	assert.ErrorIs(t, err, backup.ErrEmptySelection)
}

func TestExportCompressedPlain(t *testing.T) {
	a, _ := newTestApp(t)
	a.Cfg.Backup.Compression = "zstd"
	ctx := context.Background()

	res, err := a.Export(ctx, ExportRequest{All: true})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Key, ".json.zst"))
	assert.Equal(t, "zstd", res.Manifest.Compression)

	raw, err := a.ReadBackup(ctx, res.Key)
	require.NoError(t, err)
	summary, err := a.Preview(raw, "")
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalRecords)
}

func TestRestoreDryRunLeavesStore(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()

	res, err := a.Export(ctx, ExportRequest{All: true})
	require.NoError(t, err)
	raw, err := a.ReadBackup(ctx, res.Key)
	require.NoError(t, err)

	require.NoError(t, mem.ReplaceAll(ctx, "sales", nil))
	report, err := a.Restore(ctx, raw, RestoreRequest{DryRun: true, Collections: []string{"sales"}})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Records["sales"])

	sales, err := mem.Get(ctx, "sales")
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestRestoreCorruptedInput(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.Restore(context.Background(), []byte("not json"), RestoreRequest{})
	var invalid *backup.InvalidBackupError
	assert.True(t, errors.As(err, &invalid))
}

func TestListAndRetention(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	first, err := a.Export(ctx, ExportRequest{All: true})
	require.NoError(t, err)

	entries, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Manifest)
	assert.Equal(t, first.Key, entries[0].Manifest.Key)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(a.Cfg.Storage.Path, filepath.FromSlash(first.Key)), old, old))

	a.Cfg.Backup.Retention.KeepLast = 1
	second, err := a.Export(ctx, ExportRequest{Selection: []string{"customers"}})
	require.NoError(t, err)

	entries, err = a.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.Key, entries[0].Info.Key)
}

func TestKnownCollectionsPrefersConfig(t *testing.T) {
	a, _ := newTestApp(t)
	a.Cfg.Backup.Collections = []string{"customers"}

	res, err := a.Export(context.Background(), ExportRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers"}, res.Manifest.Collections)
}

func TestExportTileKeyExportsOnlyThatTile(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	res, err := a.Export(ctx, ExportRequest{Tiles: []string{"calendarParts"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"calendarParts"}, res.Manifest.Tiles)
	assert.Equal(t, 1, res.Manifest.TotalRecords)

	raw, err := a.ReadBackup(ctx, res.Key)
	require.NoError(t, err)
	summary, err := a.Preview(raw, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"calendarEvents": 1}, summary.Counts)

	_, err = a.Export(ctx, ExportRequest{Tiles: []string{"payroll"}})
	require.Error(t, err)
}

func TestExportSelectionPlusTileKeys(t *testing.T) {
	a, _ := newTestApp(t)
	res, err := a.Export(context.Background(), ExportRequest{
		Selection: []string{"customers"},
		Tiles:     []string{"calendarParts"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "calendarParts"}, res.Manifest.Tiles)
	assert.Equal(t, 3, res.Manifest.TotalRecords)
}

type stickyStorage struct {
	storage.Storage
}

func (stickyStorage) Delete(ctx context.Context, key string) error {
	return errors.New("read-only volume")
}

func TestRetentionLogsDeleteFailures(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	var logs bytes.Buffer
	a.Log = zerolog.New(&logs)
	a.Storage = stickyStorage{Storage: a.Storage}

	first, err := a.Export(ctx, ExportRequest{All: true})
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(a.Cfg.Storage.Path, filepath.FromSlash(first.Key)), old, old))

	a.Cfg.Backup.Retention.KeepLast = 1
	_, err = a.Export(ctx, ExportRequest{Selection: []string{"customers"}})
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "retention: failed to delete backup")
	assert.Contains(t, logs.String(), first.Key)

	entries, err := a.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
