package utils

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// TokenFingerprint returns a short digest of a credential for log output.
// The raw token must never show up in logs.
func TokenFingerprint(arg string) string {
	hasher := sha256.New()
	hasher.Write([]byte(arg))
	return hex.EncodeToString(hasher.Sum(nil))[:12]
}

// TokenMatches compares a presented token against the configured one in
// constant time.
func TokenMatches(presented, configured string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
