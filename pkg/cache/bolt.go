package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gridsync/gridsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketViews   = []byte("views")
	bucketMarkers = []byte("markers")
)

// BoltCache is the device-local cache tier, one BoltDB file per
// device.
type BoltCache struct {
	db *bolt.DB
}

// NewBoltCache opens (or creates) the local cache at path
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketViews, bucketMarkers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltCache{db: db}, nil
}

// Close closes the cache database
func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) Read(_ context.Context, viewID string) (*types.CacheEntry, error) {
	var entry *types.CacheEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketViews).Get([]byte(viewID))
		if data == nil {
			return nil
		}
		var e types.CacheEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("corrupt cache entry %s: %w", viewID, err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

func (c *BoltCache) Write(_ context.Context, entry *types.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).Put([]byte(entry.ViewID), data)
	})
}

// MigrateKeys renames every cached view whose id starts with
// fromPrefix to use toPrefix, exactly once: the whole copy-and-clear
// runs in one transaction guarded by an idempotent marker, so running
// it twice is a no-op. Returns the number of entries moved.
func (c *BoltCache) MigrateKeys(fromPrefix, toPrefix string) (int, error) {
	marker := []byte("migrated:" + fromPrefix + "->" + toPrefix)
	moved := 0

	err := c.db.Update(func(tx *bolt.Tx) error {
		markers := tx.Bucket(bucketMarkers)
		if markers.Get(marker) != nil {
			return nil // already migrated
		}

		views := tx.Bucket(bucketViews)
		type pair struct{ oldKey, newKey, value []byte }
		var pairs []pair

		cur := views.Cursor()
		prefix := []byte(fromPrefix)
		for k, v := cur.Seek(prefix); k != nil && strings.HasPrefix(string(k), fromPrefix); k, v = cur.Next() {
			newKey := toPrefix + strings.TrimPrefix(string(k), fromPrefix)
			kc := make([]byte, len(k))
			copy(kc, k)
			vc := make([]byte, len(v))
			copy(vc, v)
			pairs = append(pairs, pair{oldKey: kc, newKey: []byte(newKey), value: vc})
		}

		for _, p := range pairs {
			var entry types.CacheEntry
			if err := json.Unmarshal(p.value, &entry); err == nil {
				entry.ViewID = string(p.newKey)
				entry.Source = types.SourceMigration
				if data, err := json.Marshal(&entry); err == nil {
					p.value = data
				}
			}
			if err := views.Put(p.newKey, p.value); err != nil {
				return err
			}
			if err := views.Delete(p.oldKey); err != nil {
				return err
			}
			moved++
		}

		return markers.Put(marker, []byte("1"))
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}
