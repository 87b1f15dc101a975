package services

import (
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
)

// NewToken mints an opaque bearer token. Possession of the token string plus
// the owning record's id is the whole capability; validity windows are closed
// by the record's status, never by the token itself. Minting a new token for a
// record revokes the previous one.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// tokenMatches compares a supplied token against the stored one. Exact string
// match only; empty stored tokens never match.
func tokenMatches(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
