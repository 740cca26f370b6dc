package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowjay/collection-backup/internal/backup"
	"github.com/rowjay/collection-backup/internal/compress"
	"github.com/rowjay/collection-backup/internal/config"
	"github.com/rowjay/collection-backup/internal/lock"
	"github.com/rowjay/collection-backup/internal/logging"
	"github.com/rowjay/collection-backup/internal/storage"
	"github.com/rowjay/collection-backup/internal/store"
	"github.com/rowjay/collection-backup/internal/util"
	"github.com/rowjay/collection-backup/internal/version"
)

type App struct {
	Cfg     *config.Config
	Store   store.Store
	Storage storage.Storage
	Engine  *backup.Engine
	Codec   backup.Codec
	Log     zerolog.Logger
}

func New(cfg *config.Config, st store.Store, artifacts storage.Storage, tiles []backup.Tile, log zerolog.Logger) *App {
	engine := &backup.Engine{
		Reader: &backup.Reader{
			Store:       st,
			Log:         logging.Component(log, "snapshot"),
			Parallelism: cfg.Backup.MaxParallelism,
		},
		Tiles:            tiles,
		EventsCollection: cfg.Backup.EventsCollection,
		Source:           cfg.Backup.Source,
		Log:              logging.Component(log, "engine"),
	}
	return &App{
		Cfg:     cfg,
		Store:   st,
		Storage: artifacts,
		Engine:  engine,
		Codec:   backup.Codec{MaxPayloadBytes: cfg.Backup.MaxPayloadBytes},
		Log:     log,
	}
}

type ExportRequest struct {
	// All exports every known collection. Otherwise Selection (collection
	// names) is planned against the tiles, and Tiles names tiles to add exactly.
	All       bool
	Selection []string
	Tiles     []string
	Encrypt   bool
	Password  string
	Confirm   string
	Note      string
}

type ExportResult struct {
	Manifest    storage.Manifest
	Key         string
	Unavailable []string
}

func (a *App) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if req.Encrypt {
		if err := backup.ConfirmPassword(req.Password, req.Confirm); err != nil {
			return nil, err
		}
	}

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	note := req.Note
	if note == "" {
		note = a.Cfg.Backup.Note
	}

	var res *backup.ExportResult
	if req.All {
		known, err := a.knownCollections(ctx)
		if err != nil {
			return nil, err
		}
		res, err = a.Engine.ExportAll(ctx, known, note)
		if err != nil {
			return nil, err
		}
	} else if len(req.Tiles) > 0 {
		keys := append(backup.PlanSelection(req.Selection, a.Engine.Tiles).Tiles, req.Tiles...)
		res, err = a.Engine.ExportTiles(ctx, keys, note)
		if err != nil {
			return nil, err
		}
	} else {
		res, err = a.Engine.ExportSelection(ctx, req.Selection, note)
		if err != nil {
			return nil, err
		}
	}
	payload := res.Payload

	body, compression, ext, err := a.encode(payload, req)
	if err != nil {
		return nil, err
	}

	kind := string(payload.Metadata.Kind)
	key := util.BuildObjectKey(a.Cfg.Storage.Prefix, kind, payload.Timestamp, ext)
	exists, err := a.Storage.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("backup already exists: %s", key)
	}
	if err := a.Storage.Put(ctx, key, bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	stat, err := a.Storage.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	manifest := storage.Manifest{
		ID:           uuid.NewString(),
		Key:          key,
		Kind:         kind,
		Source:       payload.Source,
		Encrypted:    req.Encrypt,
		Compression:  compression,
		CreatedAt:    payload.Timestamp,
		SizeBytes:    stat.Size,
		Collections:  payload.Collections.Names(),
		TotalRecords: payload.Metadata.TotalRecords,
		Note:         note,
		ToolVersion:  version.Version,
	}
	if res.Plan != nil {
		manifest.Tiles = res.Plan.Tiles
	}
	if err := a.writeManifest(ctx, manifest); err != nil {
		a.Log.Warn().Err(err).Msg("failed to write manifest")
	}
	if err := a.applyRetention(ctx); err != nil {
		a.Log.Warn().Err(err).Msg("retention failed")
	}

	unavailable := make([]string, 0, len(res.Unavailable))
	for _, u := range res.Unavailable {
		unavailable = append(unavailable, u.Collection)
	}
	a.Log.Info().
		Str("key", key).
		Str("kind", kind).
		Bool("encrypted", req.Encrypt).
		Int("collections", payload.Metadata.CollectionCount).
		Int("records", payload.Metadata.TotalRecords).
		Strs("unavailable", unavailable).
		Str("size", humanize.Bytes(uint64(stat.Size))).
		Msg("export completed")

	return &ExportResult{Manifest: manifest, Key: key, Unavailable: unavailable}, nil
}

// encode renders the payload as an envelope or as (optionally compressed) plain JSON.
func (a *App) encode(payload *backup.Payload, req ExportRequest) ([]byte, string, string, error) {
	if req.Encrypt {
		env, err := a.Codec.Encrypt(payload, req.Password)
		if err != nil {
			return nil, "", "", err
		}
		body, err := backup.MarshalEnvelope(env)
		if err != nil {
			return nil, "", "", err
		}
		return body, compress.TypeNone, backup.EncryptedExtension, nil
	}

	plain, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, "", "", err
	}
	kind := a.Cfg.Backup.Compression
	if kind == "" {
		kind = compress.TypeNone
	}
	body, err := compress.Compress(kind, plain)
	if err != nil {
		return nil, "", "", err
	}
	return body, kind, "json" + compress.Extension(kind), nil
}

// knownCollections is the superset a comprehensive export covers: the
// configured list, else whatever the store holds, else every tile's collections.
func (a *App) knownCollections(ctx context.Context) ([]string, error) {
	if len(a.Cfg.Backup.Collections) > 0 {
		return a.Cfg.Backup.Collections, nil
	}
	if lister, ok := a.Store.(store.Lister); ok {
		names, err := lister.Collections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list store collections: %w", err)
		}
		if len(names) > 0 {
			return names, nil
		}
	}
	return backup.SelectAll(a.Engine.Tiles), nil
}

// ReadBackup loads the raw bytes of a stored backup.
func (a *App) ReadBackup(ctx context.Context, key string) ([]byte, error) {
	reader, err := a.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Preview summarizes a backup without touching the store.
func (a *App) Preview(raw []byte, password string) (*backup.Summary, error) {
	return a.Codec.Preview(raw, password)
}

type RestoreRequest struct {
	Password    string
	DryRun      bool
	Collections []string
}

// Restore replaces the store's collections with those in raw. It holds the
// process lock for the duration so that no export runs concurrently.
func (a *App) Restore(ctx context.Context, raw []byte, req RestoreRequest) (*backup.RestoreReport, error) {
	loaded, err := a.Codec.Load(raw, req.Password)
	if err != nil {
		return nil, err
	}

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	opts := backup.RestoreOptions{
		Only:   a.Cfg.Restore.Collections,
		DryRun: a.Cfg.Restore.DryRun || req.DryRun,
	}
	if len(req.Collections) > 0 {
		opts.Only = req.Collections
	}

	start := time.Now()
	report, err := backup.Apply(ctx, a.Store, loaded.Payload, opts, logging.Component(a.Log, "restore"))
	if err != nil {
		return report, err
	}
	a.Log.Info().
		Strs("collections", report.Restored).
		Bool("dry_run", opts.DryRun).
		Dur("took", time.Since(start)).
		Msg("restore completed")
	return report, nil
}

type Entry struct {
	Info     storage.ObjectInfo
	Manifest *storage.Manifest
}

// List returns stored backups, newest first, with their manifests when readable.
func (a *App) List(ctx context.Context) ([]Entry, error) {
	objects, err := a.Storage.List(ctx, util.BuildPrefix(a.Cfg.Storage.Prefix, ""))
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, obj := range objects {
		if obj.IsManifest {
			continue
		}
		entry := Entry{Info: obj}
		if manifest, err := a.readManifest(ctx, obj.Key); err == nil {
			entry.Manifest = &manifest
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Info.Modified.Equal(entries[j].Info.Modified) {
			return entries[i].Info.Modified.After(entries[j].Info.Modified)
		}
		return entries[i].Info.Key > entries[j].Info.Key
	})
	return entries, nil
}

func (a *App) writeManifest(ctx context.Context, manifest storage.Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return a.Storage.Put(ctx, storage.ManifestKey(manifest.Key), bytes.NewReader(payload))
}

func (a *App) readManifest(ctx context.Context, key string) (storage.Manifest, error) {
	reader, err := a.Storage.Get(ctx, storage.ManifestKey(key))
	if err != nil {
		return storage.Manifest{}, err
	}
	defer reader.Close()
	var manifest storage.Manifest
	if err := json.NewDecoder(reader).Decode(&manifest); err != nil {
		return storage.Manifest{}, err
	}
	return manifest, nil
}

func (a *App) applyRetention(ctx context.Context) error {
	policy := a.Cfg.Backup.Retention
	if policy.KeepDays == 0 && policy.KeepLast == 0 {
		return nil
	}
	entries, err := a.List(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -policy.KeepDays)
	for i, entry := range entries {
		if policy.KeepLast > 0 && i < policy.KeepLast {
			continue
		}
		if policy.KeepDays > 0 && entry.Info.Modified.After(cutoff) {
			continue
		}
		if !isBackupKey(entry.Info.Key) {
			continue
		}
		a.Log.Debug().Str("key", entry.Info.Key).Msg("retention: deleting backup")
		if err := a.Storage.Delete(ctx, entry.Info.Key); err != nil {
			a.Log.Warn().Err(err).Str("key", entry.Info.Key).Msg("retention: failed to delete backup")
			continue
		}
		if err := a.Storage.Delete(ctx, storage.ManifestKey(entry.Info.Key)); err != nil {
			a.Log.Warn().Err(err).Str("key", entry.Info.Key).Msg("retention: failed to delete manifest")
		}
	}
	return nil
}

func isBackupKey(key string) bool {
	for _, suffix := range []string{".json", ".json.gz", ".json.zst", "." + backup.EncryptedExtension} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}
