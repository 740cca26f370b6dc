package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rowjay/collection-backup/internal/compress"
)

const (
	EnvelopeVersion = "1.0"
	Algorithm       = "aes-256-gcm"

	SaltSize  = 32
	NonceSize = 16
	TagSize   = 16

	// AssociatedData binds every ciphertext to this envelope format and version.
	AssociatedData = "gbpos-encrypted-backup/v1"
)

var (
	ErrMalformed      = errors.New("malformed envelope")
	ErrUnsupported    = errors.New("unsupported envelope version or algorithm")
	ErrAuthentication = errors.New("authentication failed")
	ErrDecompress     = errors.New("payload decompression failed")
)

// Envelope is the on-disk container of an encrypted backup. Binary fields are hex.
type Envelope struct {
	Version   string    `json:"version"`
	Algorithm string    `json:"algorithm"`
	Salt      string    `json:"salt"`
	IV        string    `json:"iv"`
	Tag       string    `json:"tag"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// random is swapped in tests that need deterministic salts and nonces.
var random io.Reader = rand.Reader

// Seal gzips plain and encrypts it under a key derived from password.
func Seal(plain []byte, password string, createdAt time.Time) (*Envelope, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	packed, err := compress.Compress(compress.TypeGzip, plain)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}

	aead, err := newAEAD(DeriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, packed, []byte(AssociatedData))
	split := len(sealed) - TagSize

	return &Envelope{
		Version:   EnvelopeVersion,
		Algorithm: Algorithm,
		Salt:      hex.EncodeToString(salt),
		IV:        hex.EncodeToString(nonce),
		Tag:       hex.EncodeToString(sealed[split:]),
		Data:      hex.EncodeToString(sealed[:split]),
		Timestamp: createdAt.UTC(),
	}, nil
}

// Open authenticates and decrypts env, then decompresses the result. No
// plaintext is returned unless the tag verifies. maxPlain bounds the
// decompressed size; <= 0 means unbounded.
func Open(env *Envelope, password string, maxPlain int64) ([]byte, error) {
	if env == nil {
		return nil, ErrMalformed
	}
	if env.Version != EnvelopeVersion || env.Algorithm != Algorithm {
		return nil, ErrUnsupported
	}
	salt, err := decodeField(env.Salt, SaltSize)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeField(env.IV, NonceSize)
	if err != nil {
		return nil, err
	}
	tag, err := decodeField(env.Tag, TagSize)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(env.Data)
	if err != nil {
		return nil, ErrMalformed
	}

	aead, err := newAEAD(DeriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(data)+len(tag))
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)
	packed, err := aead.Open(nil, nonce, sealed, []byte(AssociatedData))
	if err != nil {
		return nil, ErrAuthentication
	}

	plain, err := compress.Decompress(compress.TypeGzip, packed, maxPlain)
	if err != nil {
		if errors.Is(err, compress.ErrTooLarge) {
			return nil, err
		}
		return nil, ErrDecompress
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

func decodeField(value string, size int) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != size {
		return nil, ErrMalformed
	}
	return raw, nil
}
