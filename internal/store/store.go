package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is an opaque record. The backup engine only inspects the handful of
// fields it needs for filtering and passes everything else through.
type Record map[string]any

var (
	ErrNotFound    = errors.New("collection not found")
	ErrNotSequence = errors.New("collection is not a sequence of records")
)

// Store is the keyed collection API that backups are read from and restored into.
// Implementations own any locking needed to keep writes out during a restore.
type Store interface {
	Get(ctx context.Context, collection string) ([]Record, error)
	ReplaceAll(ctx context.Context, collection string, records []Record) error
}

// Lister is implemented by stores that can enumerate their collections.
type Lister interface {
	Collections(ctx context.Context) ([]string, error)
}

// toRecords converts a decoded document into records. Anything other than a
// list of objects is rejected with ErrNotSequence.
func toRecords(value any) ([]Record, error) {
	switch v := value.(type) {
	case []Record:
		return cloneRecords(v), nil
	case []map[string]any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			out = append(out, Record(item))
		}
		return out, nil
	case []any:
		out := make([]Record, 0, len(v))
		for i, item := range v {
			switch rec := item.(type) {
			case map[string]any:
				out = append(out, Record(rec))
			case Record:
				out = append(out, rec)
			default:
				return nil, fmt.Errorf("%w: element %d is %T", ErrNotSequence, i, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotSequence, value)
	}
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
