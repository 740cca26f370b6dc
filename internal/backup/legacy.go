package backup

import (
	"math"
	"strings"

	"github.com/rowjay/collection-backup/internal/store"
)

const scheduleTag = "schedule"

// Schedule entries are derived live from technician availability; a backup
// must never carry them as authoritative data.
var (
	legacyTagFields  = []string{"type", "kind", "category"}
	legacyFlagFields = []string{"legacy", "derived"}
	technicianFields = []string{"technicianId", "technician_id"}
)

// recordView reads optional fields off a record without assuming a schema.
type recordView store.Record

func (v recordView) text(field string) (string, bool) {
	s, ok := v[field].(string)
	return s, ok
}

// has reports whether field is present with a non-null value, whatever it holds.
func (v recordView) has(field string) bool {
	return v[field] != nil
}

func (v recordView) truthy(field string) bool {
	value, ok := v[field]
	if !ok {
		return false
	}
	switch x := value.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

func (v recordView) tags() []string {
	switch x := v["tags"].(type) {
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IsLegacyDerived reports whether a calendar record is a schedule-derived
// entry rather than authoritative data.
func IsLegacyDerived(record store.Record) bool {
	view := recordView(record)
	for _, field := range legacyTagFields {
		if s, ok := view.text(field); ok && strings.EqualFold(strings.TrimSpace(s), scheduleTag) {
			return true
		}
	}
	for _, field := range legacyFlagFields {
		if view.truthy(field) {
			return true
		}
	}
	for _, field := range technicianFields {
		if view.has(field) {
			return true
		}
	}
	for _, tag := range view.tags() {
		if strings.EqualFold(strings.TrimSpace(tag), scheduleTag) {
			return true
		}
	}
	return false
}

// DropLegacy returns the records that are not legacy-derived.
func DropLegacy(records []store.Record) []store.Record {
	kept := make([]store.Record, 0, len(records))
	for _, record := range records {
		if !IsLegacyDerived(record) {
			kept = append(kept, record)
		}
	}
	return kept
}

// StripLegacy applies DropLegacy to the events collection of snap, if present.
func StripLegacy(snap Snapshot, eventsCollection string) Snapshot {
	records, ok := snap[eventsCollection]
	if !ok || eventsCollection == "" {
		return snap
	}
	snap[eventsCollection] = DropLegacy(records)
	return snap
}
