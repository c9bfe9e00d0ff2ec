package serialization

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionType represents compression algorithms
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
)

var compressionIDs = map[CompressionType]byte{
	CompressionNone: 0,
	CompressionGzip: 1,
	CompressionZstd: 2,
}

// ParseCompression resolves a configured compression name. An empty name
// means no compression.
func ParseCompression(name string) (CompressionType, error) {
	if name == "" {
		return CompressionNone, nil
	}
	c := CompressionType(name)
	if _, ok := compressionIDs[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
	return c, nil
}

func compressionByID(id byte) (CompressionType, error) {
	for c, cid := range compressionIDs {
		if cid == id {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: id %d", ErrUnknownCompression, id)
}

// Shared zstd coders; EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

func compress(c CompressionType, data []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func decompress(c CompressionType, data []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case CompressionZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}
