package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ResponseKey builds the cache key of a proxied response. The caller id
// keeps personalised responses apart; long keys are hashed.
func ResponseKey(backend, method, path, rawQuery, userID string) string {
	var b strings.Builder
	b.Grow(len(backend) + len(method) + len(path) + len(rawQuery) + len(userID) + 8)
	b.WriteString(backend)
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(path)
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	if userID != "" {
		b.WriteString(":u=")
		b.WriteString(userID)
	}

	key := b.String()
	if len(key) > maxPlainKeyLength {
		return backend + ":h=" + HashKey(key)
	}
	return key
}

const maxPlainKeyLength = 200

// HashKey returns the hex SHA-256 of key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
