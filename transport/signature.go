package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of "timestamp\nfilename" with key.
func Sign(key, timestamp, filename string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + "\n" + filename)) //nolint:errcheck
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is valid for timestamp and filename.
func VerifySignature(key, timestamp, filename, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + "\n" + filename)) //nolint:errcheck
	return hmac.Equal(mac.Sum(nil), expected)
}
