package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashPayload fingerprints a raw webhook body.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// LegacyEventID returns the explicit id when present, otherwise one derived
// from the body so byte-identical deliveries collide.
func LegacyEventID(body []byte, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return LegacyEventIDPrefix + HashPayload(body)
}
