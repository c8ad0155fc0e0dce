/*
Package randx provides functions for generating cryptographically secure random tokens
and unique identifiers.

It is primarily used to generate session tokens handed to clients for resumption,
and UUID-based connection identifiers for logging and connection tracking.
*/
package randx

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	// SessionTokenBytes is the number of random bytes in a session token (128 bits).
	SessionTokenBytes = 16

	// SessionTokenLength is the length of the hex-encoded session token string.
	SessionTokenLength = SessionTokenBytes * 2

	// MaxRoomNameLength is the maximum allowed length of a room name in runes.
	MaxRoomNameLength = 64
)

// SessionToken generates an opaque session token from 16 cryptographically secure
// random bytes, hex encoded. The token is collision-resistant and carries no
// client-readable meaning.
func SessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)

	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes for session token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// ConnectionID generates a UUID v4 string identifying a single transport connection.
func ConnectionID() string {
	return uuid.New().String()
}

// IsValidSessionToken checks whether the given string has the shape of a token
// issued by SessionToken: correct length and all lowercase hex characters.
func IsValidSessionToken(token string) bool {
	if len(token) != SessionTokenLength {
		return false
	}

	for _, char := range token {
		if (char < '0' || char > '9') && (char < 'a' || char > 'f') {
			return false
		}
	}

	return true
}

// IsValidRoomName checks whether the given string is acceptable as a room name.
// Names must be non-empty, at most MaxRoomNameLength runes, and free of control
// characters.
func IsValidRoomName(name string) bool {
	if name == "" {
		return false
	}

	runes := 0
	for _, char := range name {
		if char < 0x20 || char == 0x7f {
			return false
		}
		runes++
	}

	return runes <= MaxRoomNameLength
}
