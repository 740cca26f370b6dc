package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	TypeNone = "none"
	TypeGzip = "gzip"
	TypeZstd = "zstd"
)

// ErrTooLarge is returned when decompressed output exceeds the caller's limit.
var ErrTooLarge = errors.New("decompressed data exceeds size limit")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func WrapWriter(kind string, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case "", TypeNone:
		return nopWriteCloser{w}, nil
	case TypeGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case TypeZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

func WrapReader(kind string, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case "", TypeNone:
		return io.NopCloser(r), nil
	case TypeGzip:
		return gzip.NewReader(r)
	case TypeZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{Decoder: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

// Sniff reports the compression format of data from its magic bytes.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return TypeGzip
	case bytes.HasPrefix(data, zstdMagic):
		return TypeZstd
	default:
		return TypeNone
	}
}

// Compress encodes data in one shot.
func Compress(kind string, data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := WrapWriter(kind, buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes data in one shot, refusing output larger than limit bytes.
// A limit <= 0 means unlimited.
func Decompress(kind string, data []byte, limit int64) ([]byte, error) {
	r, err := WrapReader(kind, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	src := io.Reader(r)
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	out, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}

// Extension returns the file suffix for a compression kind.
func Extension(kind string) string {
	switch kind {
	case TypeGzip:
		return ".gz"
	case TypeZstd:
		return ".zst"
	default:
		return ""
	}
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
