package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateSeed produces a 32-hex-char random seed for a draw. The seed is
// persisted with the draw so the selection can be re-run during audits.
func GenerateSeed() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// Fallback keeps the seed non-empty if the entropy source fails
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
