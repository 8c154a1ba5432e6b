package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// NewStateToken returns a random value for the OAuth state parameter,
// used to bind a redirect back to the session that issued it.
func NewStateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
