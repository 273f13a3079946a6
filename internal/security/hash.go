package security

import (
	"crypto/sha1"
	"encoding/hex"
)

// SHA1Hex keys the session and live-connection registries.
func SHA1Hex(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
