// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package kvcache implements the persistent, TTL-evicting key/value store
// behind the post-cache and shareid-cache instances (spec.md §4.1). It is
// grounded on two sources: the teacher's
// internal/auth/session_badger.go, which shows the badger.DB
// key-prefix/iterator conventions this package follows, and
// original_source/src/cache.py, whose LMDB-backed KVCache is the direct
// semantic model — in particular its secondary index keyed by expiry
// timestamp (so eviction is a range scan, not a full table walk) and its
// amortized "run evict() once every 1000 sets" policy.
package kvcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/embedfix/internal/logging"
	"github.com/tomtom215/embedfix/internal/metrics"
)

const (
	dataPrefix   = "d:"
	expiryPrefix = "e:"

	// evictEvery is how many Set calls accumulate before an amortized
	// evict() sweep runs, per spec.md §4.1.
	evictEvery = 1000
)

// Cache is a persistent, TTL-evicting key/value store backed by a single
// badger.DB. Use Open to create a named instance (post-cache, shareid-cache).
type Cache struct {
	name string
	ttl  time.Duration
	db   *badger.DB

	setCount atomic.Uint64
}

// Open opens (creating if needed) a badger database at dir and returns a
// Cache with a fixed ttl, running an initial evict() sweep before
// returning, per spec.md §4.1 ("On open, run evict() immediately").
func Open(name, dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvcache[%s]: open %s: %w", name, dir, err)
	}
	c := &Cache{name: name, ttl: ttl, db: db}
	if err := c.evict(); err != nil {
		logging.Warn().Err(err).Str("cache", name).Msg("kvcache: initial evict failed")
	}
	return c, nil
}

// Close releases the underlying badger database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func dataKey(key string) []byte {
	return []byte(dataPrefix + key)
}

// expiryIndexKey builds "e:<8-byte big-endian nanos>:<key>" so a range
// iteration over the "e:" prefix visits entries in expiry order.
func expiryIndexKey(expiresAt time.Time, key string) []byte {
	buf := make([]byte, len(expiryPrefix)+8+1+len(key))
	n := copy(buf, expiryPrefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(expiresAt.UnixNano()))
	n += 8
	buf[n] = ':'
	n++
	copy(buf[n:], key)
	return buf
}

// Set stores value under key, timestamping the entry with the cache's
// fixed TTL, and triggers an amortized evict() sweep every 1000th call.
// A write failure is logged and swallowed: spec.md §4.1 requires the
// cache to never propagate store errors, treating a failed write as a
// miss on the next Get instead.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	expiresAt := time.Now().Add(c.ttl)

	dv := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(dv, uint64(expiresAt.UnixNano()))
	copy(dv[8:], value)

	err := c.db.Update(func(txn *badger.Txn) error {
		// A prior Set for this key left its own expiry-index entry
		// behind; remove it before writing the new one so evict()'s
		// range scan never finds a stale, already-past-due index
		// entry for a key that was freshly re-Set and isn't expired.
		if old, err := txn.Get(dataKey(key)); err == nil {
			if verr := old.Value(func(val []byte) error {
				if len(val) < 8 {
					return nil
				}
				oldExpiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
				return txn.Delete(expiryIndexKey(oldExpiresAt, key))
			}); verr != nil {
				return verr
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(dataKey(key), dv); err != nil {
			return err
		}
		return txn.Set(expiryIndexKey(expiresAt, key), []byte(key))
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("kvcache: set failed")
		return
	}

	if c.setCount.Add(1)%evictEvery == 0 {
		if err := c.evict(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Msg("kvcache: amortized evict failed")
		}
	}
}

// Get returns the value stored under key if present and not expired.
// An expired entry is deleted and treated as absent, matching spec.md
// §4.1's "if the stored timestamp + TTL is in the past, delete and return
// absent".
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var out []byte
	var expired bool
	var expiresAtNanos int64

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < 8 {
				return fmt.Errorf("kvcache: corrupt entry for key %q", key)
			}
			expiresAtNanos = int64(binary.BigEndian.Uint64(val[:8]))
			if time.Now().UnixNano() > expiresAtNanos {
				expired = true
				return nil
			}
			out = append([]byte(nil), val[8:]...)
			return nil
		})
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("kvcache: get failed")
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return nil, false
	}

	if expired {
		c.deleteKey(key, expiresAtNanos)
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return nil, false
	}
	if out == nil {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(c.name).Inc()
	return out, true
}

// deleteKey removes both the data entry and its matching expiry-index
// entry for key. expiresAtNanos must be the expiry embedded in the data
// entry being deleted, so the index key constructed here matches the one
// Set wrote alongside it.
func (c *Cache) deleteKey(key string, expiresAtNanos int64) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(dataKey(key)); err != nil {
			return err
		}
		return txn.Delete(expiryIndexKey(time.Unix(0, expiresAtNanos), key))
	})
}

// evict deletes every entry whose expiry index timestamp is in the past,
// using the secondary "e:" index so the sweep is a bounded range scan
// rather than a full-table walk (spec.md §4.1).
func (c *Cache) evict() error {
	now := uint64(time.Now().UnixNano())
	var evicted int

	err := c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(expiryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)

			nanos := binary.BigEndian.Uint64(k[len(expiryPrefix) : len(expiryPrefix)+8])
			if nanos >= now {
				// Index keys are ordered by timestamp; nothing
				// past this point is expired yet.
				break
			}

			var origKey []byte
			if err := item.Value(func(val []byte) error {
				origKey = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}

			if err := txn.Delete(k); err != nil {
				return err
			}
			if err := txn.Delete(dataKey(string(origKey))); err != nil {
				return err
			}
			evicted++
		}
		return nil
	})
	if err != nil {
		return err
	}
	if evicted > 0 {
		metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(evicted))
	}
	return nil
}

// Len reports the number of live data entries; used only by tests and
// diagnostics, not on any hot path.
func (c *Cache) Len() (int, error) {
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(dataPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
