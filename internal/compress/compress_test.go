package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAndSniff(t *testing.T) {
	plain := bytes.Repeat([]byte(`{"customers":[{"name":"Ada"}]}`), 64)

	for _, kind := range []string{TypeNone, TypeGzip, TypeZstd} {
		t.Run(kind, func(t *testing.T) {
			packed, err := Compress(kind, plain)
			require.NoError(t, err)
			assert.Equal(t, kind, Sniff(packed))

			out, err := Decompress(kind, packed, 0)
			require.NoError(t, err)
			assert.Equal(t, plain, out)
		})
	}
}

func TestDecompressLimit(t *testing.T) {
	packed, err := Compress(TypeGzip, bytes.Repeat([]byte("a"), 4096))
	require.NoError(t, err)

	_, err = Decompress(TypeGzip, packed, 1024)
	require.ErrorIs(t, err, ErrTooLarge)

	out, err := Decompress(TypeGzip, packed, 4096)
	require.NoError(t, err)
	assert.Len(t, out, 4096)
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress(TypeGzip, []byte("not gzip at all"), 0)
	require.Error(t, err)
}

func TestUnsupported(t *testing.T) {
	_, err := WrapWriter("lz4", &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, ".zst", Extension(TypeZstd))
	assert.Equal(t, "", Extension(TypeNone))
}
