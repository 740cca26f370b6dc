package backup

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/collection-backup/internal/store"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

var errBoom = errors.New("boom")

// faultyStore wraps a Memory store and fails chosen collections.
type faultyStore struct {
	*store.Memory
	getErr     map[string]error
	replaceErr map[string]error
	inFlight   atomic.Int32
	peak       atomic.Int32
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Memory: store.NewMemory(), getErr: map[string]error{}, replaceErr: map[string]error{}}
}

func (f *faultyStore) Get(ctx context.Context, name string) ([]store.Record, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if err := f.getErr[name]; err != nil {
		return nil, err
	}
	return f.Memory.Get(ctx, name)
}

func (f *faultyStore) ReplaceAll(ctx context.Context, name string, records []store.Record) error {
	if err := f.replaceErr[name]; err != nil {
		return err
	}
	return f.Memory.ReplaceAll(ctx, name, records)
}

func calendarRecords() []store.Record {
	var records []store.Record
	for i := 0; i < 5; i++ {
		records = append(records, store.Record{"id": fmt.Sprintf("p%d", i), "type": "parts"})
	}
	for i := 0; i < 3; i++ {
		records = append(records, store.Record{"id": fmt.Sprintf("e%d", i), "type": "event"})
	}
	records = append(records,
		store.Record{"id": "s1", "type": "Schedule"},
		store.Record{"id": "s2", "type": "parts", "technicianId": "t-7"},
	)
	return records
}

func nopLog() zerolog.Logger { return zerolog.Nop() }
