package backup

import (
	"fmt"
	"sort"

	"github.com/rowjay/collection-backup/internal/store"
)

// Predicate decides whether a record belongs to a tile's view of a collection.
type Predicate func(store.Record) bool

// Tile is a user-facing grouping of one or more collections. Tiles may share
// collections and narrow them with per-collection predicates.
type Tile struct {
	Key         string
	Label       string
	Collections []string
	Predicates  map[string]Predicate
}

// Plan is the outcome of resolving a selection against the tile catalog.
type Plan struct {
	// Tiles lists the keys of active tiles, in catalog order.
	Tiles []string
	// Collections is the sorted union of the collections of every active tile.
	Collections []string

	filters map[string][]Predicate
}

// PlanSelection activates every tile whose collections are all in selected.
// For each collection the predicates of the active tiles are OR-combined; a
// collection no active tile filters keeps all of its records.
func PlanSelection(selected []string, tiles []Tile) Plan {
	chosen := make(map[string]bool, len(selected))
	for _, name := range selected {
		chosen[name] = true
	}
	var active []Tile
	for _, tile := range tiles {
		if tileSelected(tile, chosen) {
			active = append(active, tile)
		}
	}
	return planFor(active)
}

// PlanTiles activates exactly the tiles named by keys, regardless of other
// tiles covering the same collections.
func PlanTiles(keys []string, tiles []Tile) (Plan, error) {
	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}
	var active []Tile
	for _, tile := range tiles {
		if wanted[tile.Key] {
			active = append(active, tile)
			delete(wanted, tile.Key)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for key := range wanted {
			unknown = append(unknown, key)
		}
		sort.Strings(unknown)
		return Plan{}, fmt.Errorf("unknown tile %q", unknown[0])
	}
	return planFor(active), nil
}

func planFor(active []Tile) Plan {
	plan := Plan{filters: map[string][]Predicate{}}
	collections := map[string]bool{}
	for _, tile := range active {
		plan.Tiles = append(plan.Tiles, tile.Key)
		for _, name := range tile.Collections {
			collections[name] = true
			if pred := tile.Predicates[name]; pred != nil {
				plan.filters[name] = append(plan.filters[name], pred)
			}
		}
	}
	for name := range collections {
		plan.Collections = append(plan.Collections, name)
	}
	sort.Strings(plan.Collections)
	return plan
}

func tileSelected(tile Tile, chosen map[string]bool) bool {
	if len(tile.Collections) == 0 {
		return false
	}
	for _, name := range tile.Collections {
		if !chosen[name] {
			return false
		}
	}
	return true
}

// Keep reports whether record survives the plan's filter for collection:
// true when no active tile filters it, else the OR of the filters.
func (p Plan) Keep(collection string, record store.Record) bool {
	preds := p.filters[collection]
	if len(preds) == 0 {
		return true
	}
	for _, pred := range preds {
		if pred(record) {
			return true
		}
	}
	return false
}

// Apply filters every collection of snap in place and returns it.
// Each record is tested once, so overlapping tiles never duplicate records.
func (p Plan) Apply(snap Snapshot) Snapshot {
	for name, records := range snap {
		if len(p.filters[name]) == 0 {
			continue
		}
		kept := make([]store.Record, 0, len(records))
		for _, record := range records {
			if p.Keep(name, record) {
				kept = append(kept, record)
			}
		}
		snap[name] = kept
	}
	return snap
}

// SelectAll returns the union of every tile's collections, which activates
// every tile when passed to PlanSelection.
func SelectAll(tiles []Tile) []string {
	seen := map[string]bool{}
	var names []string
	for _, tile := range tiles {
		for _, name := range tile.Collections {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// ValidateTiles checks key uniqueness and that predicates only target the
// tile's own collections.
func ValidateTiles(tiles []Tile) error {
	seen := map[string]bool{}
	for _, tile := range tiles {
		if tile.Key == "" {
			return fmt.Errorf("tile with label %q has no key", tile.Label)
		}
		if seen[tile.Key] {
			return fmt.Errorf("duplicate tile key %q", tile.Key)
		}
		seen[tile.Key] = true
		if len(tile.Collections) == 0 {
			return fmt.Errorf("tile %q references no collections", tile.Key)
		}
		own := map[string]bool{}
		for _, name := range tile.Collections {
			if name == "" {
				return fmt.Errorf("tile %q has an empty collection name", tile.Key)
			}
			own[name] = true
		}
		for name := range tile.Predicates {
			if !own[name] {
				return fmt.Errorf("tile %q filters %q which it does not include", tile.Key, name)
			}
		}
	}
	return nil
}
