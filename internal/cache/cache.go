package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores oracle replies keyed by prompt
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "corroborate:v1:"

// PromptKey derives a cache key from the parts that determine an oracle
// reply: provider, model, prompt kind and the prompt text itself
func PromptKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// New builds the configured cache: memory only when dir is empty,
// memory in front of disk otherwise
func New(dir string, ttl time.Duration) Cache {
	if dir == "" {
		return NewMemoryCache(ttl, 10*time.Minute)
	}
	return NewTiered(NewMemoryCache(ttl, 10*time.Minute), NewDiskCache(dir, ttl))
}
