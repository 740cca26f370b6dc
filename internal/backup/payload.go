package backup

import (
	"time"

	"github.com/rowjay/collection-backup/internal/store"
)

type BuildOptions struct {
	Source string
	Note   string
	Kind   Kind
	// ScannedAt is when the snapshot was read; defaults to the creation time.
	ScannedAt time.Time
	// Now defaults to time.Now.
	Now func() time.Time
}

// Build assembles a payload from an already filtered snapshot. The output is
// a pure function of its inputs apart from the creation timestamp.
func Build(snap Snapshot, opts BuildOptions) *Payload {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	created := now().UTC()
	scanned := opts.ScannedAt.UTC()
	if opts.ScannedAt.IsZero() {
		scanned = created
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindPartial
	}

	collections := make(Snapshot, len(snap))
	for name, records := range snap {
		if records == nil {
			records = []store.Record{}
		}
		collections[name] = records
	}

	return &Payload{
		Version:       FormatVersion,
		Timestamp:     created,
		Source:        opts.Source,
		DataComplete:  kind == KindComprehensive,
		ScanTimestamp: scanned,
		Collections:   collections,
		Metadata: Metadata{
			TotalRecords:    collections.TotalRecords(),
			CollectionCount: len(collections),
			Kind:            kind,
			Note:            opts.Note,
		},
	}
}
