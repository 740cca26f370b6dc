package backup

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rowjay/collection-backup/internal/store"
)

type RestoreOptions struct {
	// Only limits the restore to these collections; empty restores everything.
	Only []string
	// DryRun reports what would be replaced without writing.
	DryRun bool
}

type RestoreReport struct {
	Restored []string
	Skipped  []string
	Failures []CollectionFailure
	Records  map[string]int
	DryRun   bool
}

// Apply replaces each collection in p wholesale. Collections not in p are
// untouched. Every collection is attempted; failures are collected into a
// *PartialRestoreError rather than stopping at the first one.
//
// The store must keep other writers out while this runs.
func Apply(ctx context.Context, st store.Store, p *Payload, opts RestoreOptions, log zerolog.Logger) (*RestoreReport, error) {
	names := p.Collections.Names()
	report := &RestoreReport{Records: make(map[string]int, len(names)), DryRun: opts.DryRun}

	if len(opts.Only) > 0 {
		wanted := make(map[string]bool, len(opts.Only))
		for _, name := range opts.Only {
			wanted[name] = true
		}
		filtered := names[:0]
		for _, name := range names {
			if wanted[name] {
				filtered = append(filtered, name)
				delete(wanted, name)
			} else {
				report.Skipped = append(report.Skipped, name)
			}
		}
		names = filtered
		for name := range wanted {
			log.Warn().Str("collection", name).Msg("requested collection not present in backup")
		}
	}

	for _, name := range names {
		records := p.Collections[name]
		report.Records[name] = len(records)
		if opts.DryRun {
			log.Info().Str("collection", name).Int("records", len(records)).Msg("dry run: would replace collection")
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, CollectionFailure{Collection: name, Err: err})
			continue
		}
		if err := st.ReplaceAll(ctx, name, records); err != nil {
			log.Error().Err(err).Str("collection", name).Msg("replace collection failed")
			report.Failures = append(report.Failures, CollectionFailure{Collection: name, Err: err})
			continue
		}
		log.Debug().Str("collection", name).Int("records", len(records)).Msg("collection replaced")
		report.Restored = append(report.Restored, name)
	}

	if len(report.Failures) > 0 {
		return report, &PartialRestoreError{Restored: report.Restored, Failures: report.Failures}
	}
	return report, nil
}
