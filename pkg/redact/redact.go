// Package redact masks credential material before it reaches logs or
// terminal output. Tokens are never written verbatim anywhere.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
)

// showChars is how many leading characters of a token survive masking.
const showChars = 6

// Token masks a token value, keeping a short identifying prefix.
// Values too short to safely truncate are fully masked.
func Token(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= showChars*2 {
		return "***"
	}
	return value[:showChars] + "***"
}

// Fingerprint returns a stable, non-reversible identifier for a token,
// suitable for correlating log lines across a refresh cycle.
func Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(hash[:])[:16]
}
