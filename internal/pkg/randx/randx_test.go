package randx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenShape(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		token, err := SessionToken()
		require.NoError(t, err)

		assert.Len(t, token, SessionTokenLength)
		assert.True(t, IsValidSessionToken(token))

		_, dup := seen[token]
		require.False(t, dup, "token collision")
		seen[token] = struct{}{}
	}
}

func TestIsValidSessionToken(t *testing.T) {
	assert.True(t, IsValidSessionToken("0123456789abcdef0123456789abcdef"))

	assert.False(t, IsValidSessionToken(""))
	assert.False(t, IsValidSessionToken("short"))
	assert.False(t, IsValidSessionToken("0123456789ABCDEF0123456789ABCDEF"))
	assert.False(t, IsValidSessionToken("0123456789abcdef0123456789abcdeg"))
}

func TestConnectionIDIsUUID(t *testing.T) {
	id := ConnectionID()

	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestIsValidRoomName(t *testing.T) {
	assert.True(t, IsValidRoomName("general"))
	assert.True(t, IsValidRoomName("room with spaces"))
	assert.True(t, IsValidRoomName("日本語"))

	assert.False(t, IsValidRoomName(""))
	assert.False(t, IsValidRoomName("line\nbreak"))
	assert.False(t, IsValidRoomName(longName(MaxRoomNameLength+1)))
}

func longName(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = 'a'
	}
	return string(runes)
}
