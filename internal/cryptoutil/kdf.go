package cryptoutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFIterations is the PBKDF2-HMAC-SHA256 work factor. Key derivation is
	// intentionally slow; callers must not run it on an interactive path.
	KDFIterations = 100_000
	KeySize       = 32
)

// DeriveKey stretches a password into a 256-bit key with the given salt.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, KDFIterations, KeySize, sha256.New)
}
