// Package identity derives stable session identifiers from project
// directory paths.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// hashKey keys the session-id derivation. It is not a secret: the keyed
// hash only guarantees that ids are one-way and stable, not that they are
// unforgeable.
var hashKey = []byte("agentd.session.v1")

// IDLength is the length in hex characters of a derived session id.
const IDLength = 16

// SessionID maps an absolute directory path to a fixed-length hex id.
// The same path always yields the same id.
func SessionID(path string) string {
	mac := hmac.New(sha256.New, hashKey)
	mac.Write([]byte(path))
	return hex.EncodeToString(mac.Sum(nil))[:IDLength]
}
