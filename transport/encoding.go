package transport

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/photoshelf/go-uploadutils/payload"
)

// Encoding selects how a payload body is encoded on the wire.
type Encoding string

const (
	// EncodingNone sends the payload as is.
	EncodingNone Encoding = "none"
	// EncodingZstd compresses the payload with zstd and sets Content-Encoding.
	EncodingZstd Encoding = "zstd"
)

// ParseEncoding ...
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingNone:
		return EncodingNone, nil
	case EncodingZstd:
		return EncodingZstd, nil
	default:
		return "", fmt.Errorf("unknown encoding: %s (supported: none, zstd)", s)
	}
}

// encodeZstd compresses the whole payload in memory. Photos are small enough
// that the encoded size must be known up front for Content-Length.
func encodeZstd(p payload.Payload) ([]byte, error) {
	reader, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close() //nolint:errcheck

	var buf bytes.Buffer
	zstdWriter, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := io.Copy(zstdWriter, reader); err != nil {
		_ = zstdWriter.Close()
		return nil, fmt.Errorf("compress %s: %w", p.Name(), err)
	}
	if err := zstdWriter.Close(); err != nil {
		return nil, fmt.Errorf("close zstd writer: %w", err)
	}

	return buf.Bytes(), nil
}
