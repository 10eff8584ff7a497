// Package dedupcache provides a local badger-backed lookup cache in front
// of the metadata store's dedup query, so the Upload Pipeline's hot path
// (has this checksum+mimeType been stored already?) doesn't round-trip to
// the database on every upload.
package dedupcache

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/bozonx/mediastore/internal/logger"
)

// Cache is a badger-backed cache mapping "checksum:mimeType" to the ready
// File ID that owns that content, with a short TTL so it never drifts far
// from the metadata store's ground truth.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) the badger database at path.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedup cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

func dedupKey(checksum, mimeType string) []byte {
	return []byte(checksum + ":" + mimeType)
}

// Lookup returns the cached File ID for (checksum, mimeType), and whether it was found.
func (c *Cache) Lookup(ctx context.Context, checksum, mimeType string) (string, bool) {
	var fileID string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dedupKey(checksum, mimeType))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			fileID = string(val)
			return nil
		})
	})
	if err != nil {
		logger.DebugCtx(ctx, "dedup cache miss", logger.Checksum(checksum), logger.MimeType(mimeType))
		return "", false
	}
	return fileID, true
}

// Store records that (checksum, mimeType) is now owned by fileID.
func (c *Cache) Store(checksum, mimeType, fileID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(dedupKey(checksum, mimeType), []byte(fileID)).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}

// Invalidate removes a cached entry, used when GC physically deletes the
// underlying blob so a stale dedup hit can't resurrect a dangling reference.
func (c *Cache) Invalidate(checksum, mimeType string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dedupKey(checksum, mimeType))
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}
