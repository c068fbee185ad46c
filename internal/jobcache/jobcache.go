// Package jobcache avoids redundant recompression when the same file
// is submitted twice within one batch or serve run. It is a pure
// host-level optimization: a miss always falls through to the real
// pipeline, so it can never affect output bytes.
package jobcache

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Result is what a recompression job produces for one input file.
type Result struct {
	Output         []byte
	OriginalBytes  int
	OptimizedBytes int
}

// Cache is a small LRU keyed by a content hash of the input file.
type Cache struct {
	inner *lru.Cache[string, Result]
}

// New returns a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	inner, err := lru.New[string, Result](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Key hashes the input file's contents plus the settings fingerprint
// that influenced the encode, so identical bytes run under different
// flags never collide.
func Key(data []byte, settingsFingerprint string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ":" + settingsFingerprint
}

// Get returns the cached result for key, if any.
func (c *Cache) Get(key string) (Result, bool) {
	return c.inner.Get(key)
}

// Put stores result under key, evicting the least recently used entry
// if the cache is full.
func (c *Cache) Put(key string, result Result) {
	c.inner.Add(key, result)
}
