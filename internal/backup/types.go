// Package backup implements the collection backup engine: snapshotting named
// record collections, tile-based selection, payload assembly, the encrypted
// envelope codec, preview of candidate files and whole-collection restore.
//
// Export data flow:
//
//	selection -> PlanSelection -> Reader.Read (+ DropLegacy) -> Build -> [Encrypt] -> file
//
// Restore reverses it:
//
//	file -> Load ([Decrypt]) -> Summarize -> Apply
package backup

import (
	"sort"
	"time"

	"github.com/rowjay/collection-backup/internal/store"
)

const (
	// FormatVersion is written into every plain payload.
	FormatVersion = "2.0"

	// EncryptedExtension is the file suffix reserved for encrypted exports.
	EncryptedExtension = "gbpos"
)

// Kind tells whether a payload covers every known collection or a selection.
type Kind string

const (
	KindComprehensive Kind = "comprehensive"
	KindPartial       Kind = "partial"
)

// Snapshot maps collection names to their records at a point in time.
// Absent collections are omitted; fetched-but-empty ones map to an empty slice.
type Snapshot map[string][]store.Record

// Names returns the collection names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalRecords sums the record counts of every collection.
func (s Snapshot) TotalRecords() int {
	total := 0
	for _, records := range s {
		total += len(records)
	}
	return total
}

type Metadata struct {
	TotalRecords    int    `json:"totalRecords"`
	CollectionCount int    `json:"collectionCount"`
	Kind            Kind   `json:"backupType"`
	Note            string `json:"note"`
}

// Payload is the plain export document.
type Payload struct {
	Version       string    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	DataComplete  bool      `json:"dataComplete"`
	ScanTimestamp time.Time `json:"scanTimestamp"`
	Collections   Snapshot  `json:"collections"`
	Metadata      Metadata  `json:"metadata"`
}
