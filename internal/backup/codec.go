package backup

import (
	"errors"

	"github.com/goccy/go-json"

	"github.com/rowjay/collection-backup/internal/compress"
	"github.com/rowjay/collection-backup/internal/cryptoutil"
)

// DefaultMaxPayloadBytes bounds decompressed payloads when a Codec has no limit set.
const DefaultMaxPayloadBytes = 512 << 20

// Codec converts payloads to and from encrypted envelopes.
type Codec struct {
	MaxPayloadBytes int64
}

func (c Codec) limit() int64 {
	if c.MaxPayloadBytes > 0 {
		return c.MaxPayloadBytes
	}
	return DefaultMaxPayloadBytes
}

// MarshalPayload renders the canonical JSON form: struct fields in declaration
// order, map keys sorted.
func MarshalPayload(p *Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Encrypt serializes, compresses and seals p. The caller is expected to have
// checked the password with ConfirmPassword.
func (c Codec) Encrypt(p *Payload, password string) (*cryptoutil.Envelope, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	plain, err := MarshalPayload(p)
	if err != nil {
		return nil, err
	}
	return cryptoutil.Seal(plain, password, p.Timestamp)
}

// Decrypt authenticates env and returns its payload. Every failure is an
// *InvalidBackupError.
func (c Codec) Decrypt(env *cryptoutil.Envelope, password string) (*Payload, error) {
	plain, err := cryptoutil.Open(env, password, c.limit())
	if err != nil {
		return nil, invalid(openHint(err))
	}
	doc, err := decodeDocument(plain)
	if err != nil {
		return nil, err
	}
	if _, ok := doc["collections"]; !ok {
		return nil, invalid("decrypted data carries no collections")
	}
	return decodePayload(plain)
}

// Encrypt uses a zero Codec.
func Encrypt(p *Payload, password string) (*cryptoutil.Envelope, error) {
	return Codec{}.Encrypt(p, password)
}

// Decrypt uses a zero Codec.
func Decrypt(env *cryptoutil.Envelope, password string) (*Payload, error) {
	return Codec{}.Decrypt(env, password)
}

// MarshalEnvelope renders an envelope as indented JSON for storage.
func MarshalEnvelope(env *cryptoutil.Envelope) ([]byte, error) {
	return json.MarshalIndent(env, "", "  ")
}

func openHint(err error) string {
	switch {
	case errors.Is(err, cryptoutil.ErrAuthentication):
		return "the password is wrong or the file was modified"
	case errors.Is(err, cryptoutil.ErrUnsupported):
		return "the file was written by an unsupported version"
	case errors.Is(err, compress.ErrTooLarge):
		return "the decrypted payload exceeds the size limit"
	default:
		return "the file is damaged or truncated"
	}
}

type rawDocument map[string]json.RawMessage

func decodeDocument(data []byte) (rawDocument, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, invalid("the file is not a JSON object")
	}
	return doc, nil
}

func decodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, invalid("the payload is not well formed")
	}
	if p.Collections == nil {
		return nil, invalid("the payload has no collections mapping")
	}
	for name, records := range p.Collections {
		if records == nil {
			return nil, invalid("collection " + name + " is not a list of records")
		}
	}
	return &p, nil
}
