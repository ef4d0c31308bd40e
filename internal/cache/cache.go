package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Store holds encoded cache entries. Entries describe immutable revisions,
// so they have no expiry and a key is never rewritten with different content.
type Store interface {
	Load(key string) ([]byte, bool)
	Save(key string, value []byte) error
	Delete(key string) error
	Clear() error
}

// keyPrefix versions the entry encoding
const keyPrefix = "etlconv:v1:"

// ContentKey generates a cache key for a file at a revision
func ContentKey(path, revision string) string {
	hash := sha256.Sum256([]byte(path + "@" + revision))
	return keyPrefix + hex.EncodeToString(hash[:])
}
