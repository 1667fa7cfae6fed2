package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Checksum returns the hex-encoded SHA-256 checksum of the payload content.
func Checksum(p Payload) (string, error) {
	reader, err := p.Open()
	if err != nil {
		return "", err
	}
	defer reader.Close() //nolint:errcheck

	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return "", fmt.Errorf("hash %s: %w", p.Name(), err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
