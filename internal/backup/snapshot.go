package backup

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/collection-backup/internal/store"
)

// Reader fetches collections from the live store. Fetches run concurrently,
// each failing independently with no retry.
type Reader struct {
	Store store.Store
	Log   zerolog.Logger
	// Parallelism bounds in-flight fetches; <= 0 means one goroutine per collection.
	Parallelism int
}

type ReadResult struct {
	Snapshot    Snapshot
	Unavailable []*CollectionUnavailableError
}

// Read fetches every named collection. A collection that errors or is not a
// record list is logged and omitted; only cancellation of ctx fails the read.
// Read returns once every fetch has completed or been skipped.
func (r *Reader) Read(ctx context.Context, names []string) (*ReadResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	if r.Parallelism > 0 {
		g.SetLimit(r.Parallelism)
	}

	var mu sync.Mutex
	result := &ReadResult{Snapshot: make(Snapshot, len(names))}
	for _, name := range uniqueNames(names) {
		g.Go(func() error {
			records, err := r.Store.Get(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.Log.Warn().Err(err).Str("collection", name).Msg("collection unavailable, skipping")
				result.Unavailable = append(result.Unavailable, &CollectionUnavailableError{Collection: name, Err: err})
				return nil
			}
			if records == nil {
				records = []store.Record{}
			}
			result.Snapshot[name] = records
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(result.Unavailable, func(i, j int) bool {
		return result.Unavailable[i].Collection < result.Unavailable[j].Collection
	})
	return result, nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
