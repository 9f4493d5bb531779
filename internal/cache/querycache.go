// Package cache implements the content-addressed query result cache: a
// durable Badger store with TTL support in front of a locked in-process
// fallback map used whenever the primary is unavailable.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	// keyPrefix namespaces query-result keys in the shared store.
	keyPrefix = "qcache:"

	// DefaultResponseTTL is the lifetime of cached query responses.
	DefaultResponseTTL = 30 * time.Second

	// DedupMarkerTTL is the lifetime of ingest dedup markers.
	DedupMarkerTTL = 24 * time.Hour
)

// QueryCache caches serialized query responses. The primary store is Badger
// with native TTL expiry; when it is unavailable at startup or an operation
// fails, the cache transparently uses an in-process map with per-key expiry
// checked lazily on read. A failed primary write never disables the primary
// store, so the cache self-heals once the store recovers.
//
// The fallback map is the only mutable state shared across requests; all
// access to it is serialized by one mutex so the expiry check and eviction
// cannot race.
type QueryCache struct {
	logger  *slog.Logger
	primary *badger.DB

	mu     sync.Mutex
	store  map[string][]byte
	expire map[string]time.Time
}

// New opens a query cache backed by a Badger database at dir. When the store
// cannot be opened the cache still works, serving from the in-process
// fallback only. An empty dir opens an in-memory Badger instance (useful for
// tests and single-node setups).
func New(dir string, logger *slog.Logger) *QueryCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &QueryCache{
		logger: logger,
		store:  make(map[string][]byte),
		expire: make(map[string]time.Time),
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		logger.Warn("failed to open cache store, using in-memory fallback", "dir", dir, "error", err)
		return c
	}
	c.primary = db
	logger.Info("query cache initialized", "dir", dir, "in_memory", dir == "")
	return c
}

// Available reports whether the primary store is active, for health and
// degradation reporting.
func (c *QueryCache) Available() bool {
	return c.primary != nil
}

// MakeKey derives the deterministic cache key for a query. The key is a
// strong hash over exactly the parameters that affect the result; the query
// text is case-sensitive to preserve user intent.
func MakeKey(q string, hybrid bool, topK, vectorK, bm25K, page, pageSize int, rerank bool) string {
	raw := fmt.Sprintf("%s|%t|%d|%d|%d|%d|%d|%t", q, hybrid, topK, vectorK, bm25K, page, pageSize, rerank)
	digest := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(digest[:])[:32]
}

// Get returns the cached value for key, or ok=false on a miss. A primary
// read failure falls through to the fallback store.
func (c *QueryCache) Get(key string) ([]byte, bool) {
	if c.primary != nil {
		var value []byte
		err := c.primary.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if err != nil {
				return err
			}
			value, err = item.ValueCopy(nil)
			return err
		})
		switch err {
		case nil:
			return value, true
		case badger.ErrKeyNotFound:
			return nil, false
		default:
			c.logger.Warn("cache get failed on primary store", "key", key, "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if expiry, ok := c.expire[key]; ok && time.Now().After(expiry) {
		delete(c.store, key)
		delete(c.expire, key)
		return nil, false
	}
	value, ok := c.store[key]
	return value, ok
}

// Set stores value under key with the given TTL. A primary write failure is
// logged and the value lands in the fallback store instead; the primary is
// re-attempted on every subsequent write.
func (c *QueryCache) Set(key string, value []byte, ttl time.Duration) {
	if len(value) == 0 {
		return
	}

	if c.primary != nil {
		err := c.primary.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
			return txn.SetEntry(entry)
		})
		if err == nil {
			return
		}
		c.logger.Warn("cache set failed on primary store, using fallback", "key", key, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
	c.expire[key] = time.Now().Add(ttl)
}

// Close releases the primary store.
func (c *QueryCache) Close() error {
	if c.primary == nil {
		return nil
	}
	return c.primary.Close()
}
