package backup

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/rowjay/collection-backup/internal/compress"
	"github.com/rowjay/collection-backup/internal/cryptoutil"
	"github.com/rowjay/collection-backup/internal/store"
)

// Loaded is a backup file decoded into a transient payload.
type Loaded struct {
	Payload   *Payload
	Encrypted bool
	// Flat marks an older export whose collections sit at the top level
	// instead of under a "collections" key.
	Flat bool
}

// Summary is what a user confirms before restoring.
type Summary struct {
	IsComprehensive bool           `json:"isComprehensive"`
	Encrypted       bool           `json:"encrypted"`
	Collections     []string       `json:"collections"`
	Counts          map[string]int `json:"counts"`
	TotalRecords    int            `json:"totalRecords"`
	Source          string         `json:"source,omitempty"`
	CreatedAt       time.Time      `json:"createdAt,omitempty"`
}

// Load decodes raw file contents. Plain payloads (optionally gzip or zstd
// compressed) need no password; envelopes return ErrPasswordRequired when
// password is empty. Nothing outside the returned value is touched.
func (c Codec) Load(raw []byte, password string) (*Loaded, error) {
	if kind := compress.Sniff(raw); kind != compress.TypeNone {
		unpacked, err := compress.Decompress(kind, raw, c.limit())
		if err != nil {
			return nil, invalid("the compressed file could not be read")
		}
		raw = unpacked
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	if _, ok := doc["collections"]; ok {
		p, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		return &Loaded{Payload: p}, nil
	}

	if isEnvelope(doc) {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		var env cryptoutil.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, invalid("the envelope is not well formed")
		}
		p, err := c.Decrypt(&env, password)
		if err != nil {
			return nil, err
		}
		return &Loaded{Payload: p, Encrypted: true}, nil
	}

	if p := decodeFlat(doc); p != nil {
		return &Loaded{Payload: p, Flat: true}, nil
	}
	return nil, invalid("the file is neither a backup payload nor an encrypted backup")
}

// Preview loads raw and summarizes it.
func (c Codec) Preview(raw []byte, password string) (*Summary, error) {
	loaded, err := c.Load(raw, password)
	if err != nil {
		return nil, err
	}
	return loaded.Summarize(), nil
}

// Load uses a zero Codec.
func Load(raw []byte, password string) (*Loaded, error) {
	return Codec{}.Load(raw, password)
}

// Preview uses a zero Codec.
func Preview(raw []byte, password string) (*Summary, error) {
	return Codec{}.Preview(raw, password)
}

// IsEncrypted reports whether raw looks like an encrypted envelope.
func IsEncrypted(raw []byte) bool {
	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	_, hasCollections := doc["collections"]
	return !hasCollections && isEnvelope(doc)
}

// Summarize counts records per collection. Counts come from the collections
// themselves, never from the stored metadata.
func (l *Loaded) Summarize() *Summary {
	p := l.Payload
	s := &Summary{
		IsComprehensive: !l.Flat,
		Encrypted:       l.Encrypted,
		Collections:     p.Collections.Names(),
		Counts:          make(map[string]int, len(p.Collections)),
		Source:          p.Source,
		CreatedAt:       p.Timestamp,
	}
	for name, records := range p.Collections {
		s.Counts[name] = len(records)
		s.TotalRecords += len(records)
	}
	return s
}

func isEnvelope(doc rawDocument) bool {
	for _, key := range []string{"algorithm", "salt", "data"} {
		if _, ok := doc[key]; !ok {
			return false
		}
	}
	return true
}

// decodeFlat accepts older exports whose top-level array members are collections.
func decodeFlat(doc rawDocument) *Payload {
	snap := Snapshot{}
	for name, value := range doc {
		var records []store.Record
		if err := json.Unmarshal(value, &records); err != nil || records == nil {
			continue
		}
		snap[name] = records
	}
	if len(snap) == 0 {
		return nil
	}
	return &Payload{
		Version:     "legacy",
		Collections: snap,
		Metadata: Metadata{
			TotalRecords:    snap.TotalRecords(),
			CollectionCount: len(snap),
			Kind:            KindPartial,
		},
	}
}
