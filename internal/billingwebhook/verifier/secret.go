package verifier

import (
	"crypto/subtle"
	"strings"
)

const HeaderLegacySecret = "X-Openplan-Billing-Secret"

// SharedSecret authorizes legacy deliveries carrying the configured secret.
type SharedSecret struct {
	secret string
}

func NewSharedSecret(secret string) SharedSecret {
	return SharedSecret{secret: strings.TrimSpace(secret)}
}

// Configured reports whether a secret is set at all.
func (s SharedSecret) Configured() bool {
	return s.secret != ""
}

// Matches is an exact, case-sensitive comparison after trimming. An empty
// configured secret never matches.
func (s SharedSecret) Matches(presented string) bool {
	if s.secret == "" {
		return false
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.secret)) == 1
}
