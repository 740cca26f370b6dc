package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Engine ties the reader, planner, legacy filter and builder together. It holds
// no snapshot state between calls; every export reads the store afresh.
type Engine struct {
	Reader           *Reader
	Tiles            []Tile
	EventsCollection string
	Source           string
	Log              zerolog.Logger
	Now              func() time.Time
}

type ExportResult struct {
	Payload     *Payload
	Plan        *Plan
	Unavailable []*CollectionUnavailableError
}

// ExportAll snapshots every collection in known and builds a comprehensive payload.
func (e *Engine) ExportAll(ctx context.Context, known []string, note string) (*ExportResult, error) {
	if len(known) == 0 {
		return nil, fmt.Errorf("no collections to export")
	}
	return e.export(ctx, known, nil, KindComprehensive, note)
}

// ExportSelection resolves selected against the tile catalog and builds a
// partial payload from the activated tiles.
func (e *Engine) ExportSelection(ctx context.Context, selected []string, note string) (*ExportResult, error) {
	plan := PlanSelection(selected, e.Tiles)
	if len(plan.Collections) == 0 {
		return nil, ErrEmptySelection
	}
	return e.export(ctx, plan.Collections, &plan, KindPartial, note)
}

// ExportTiles builds a partial payload from exactly the tiles named by keys.
func (e *Engine) ExportTiles(ctx context.Context, keys []string, note string) (*ExportResult, error) {
	plan, err := PlanTiles(keys, e.Tiles)
	if err != nil {
		return nil, err
	}
	if len(plan.Collections) == 0 {
		return nil, ErrEmptySelection
	}
	return e.export(ctx, plan.Collections, &plan, KindPartial, note)
}

func (e *Engine) export(ctx context.Context, names []string, plan *Plan, kind Kind, note string) (*ExportResult, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	scanned := now()

	read, err := e.Reader.Read(ctx, names)
	if err != nil {
		return nil, err
	}
	snap := StripLegacy(read.Snapshot, e.EventsCollection)
	if plan != nil {
		snap = plan.Apply(snap)
	}

	payload := Build(snap, BuildOptions{
		Source:    e.Source,
		Note:      note,
		Kind:      kind,
		ScannedAt: scanned,
		Now:       now,
	})
	e.Log.Debug().
		Str("kind", string(kind)).
		Int("collections", payload.Metadata.CollectionCount).
		Int("records", payload.Metadata.TotalRecords).
		Int("unavailable", len(read.Unavailable)).
		Msg("payload built")
	return &ExportResult{Payload: payload, Plan: plan, Unavailable: read.Unavailable}, nil
}
