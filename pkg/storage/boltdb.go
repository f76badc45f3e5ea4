package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/gridsync/gridsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names. Rows and change logs are nested one sub-bucket
	// per sheet so each sheet gets its own key space and sequence.
	bucketSheets    = []byte("sheets")
	bucketRows      = []byte("rows")
	bucketChangelog = []byte("changelog")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "gridsync.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSheets,
			bucketRows,
			bucketChangelog,
		}

		for _, bucket := range buckets {
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

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Sheet operations
func (s *BoltStore) PutSheet(meta *types.SheetMeta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSheets)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put([]byte(meta.Name), data)
	})
}

func (s *BoltStore) GetSheet(name string) (*types.SheetMeta, error) {
	var meta types.SheetMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSheets)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrNotFound, name)
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *BoltStore) ListSheets() ([]*types.SheetMeta, error) {
	var sheets []*types.SheetMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSheets)
		return b.ForEach(func(k, v []byte) error {
			var meta types.SheetMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			sheets = append(sheets, &meta)
			return nil
		})
	})
	return sheets, err
}

// Row operations
func (s *BoltStore) PutRow(sheet string, row *types.Row) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketRows).CreateBucketIfNotExists([]byte(sheet))
		if err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(row.Key), data)
	})
}

func (s *BoltStore) GetRow(sheet, key string) (*types.Row, error) {
	var row types.Row
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRows).Bucket([]byte(sheet))
		if b == nil {
			return fmt.Errorf("%w: %s/%s", types.ErrNotFound, sheet, key)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s/%s", types.ErrNotFound, sheet, key)
		}
		return json.Unmarshal(data, &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *BoltStore) ListRows(sheet string) ([]*types.Row, error) {
	var rows []*types.Row
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRows).Bucket([]byte(sheet))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var row types.Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, &row)
			return nil
		})
	})
	return rows, err
}

func (s *BoltStore) DeleteRow(sheet, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRows).Bucket([]byte(sheet))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Change log operations

func (s *BoltStore) AppendChange(sheet string, rec *types.ChangeRecord) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketChangelog).CreateBucketIfNotExists([]byte(sheet))
		if err != nil {
			return err
		}
		// NextSequence inside the write transaction makes version
		// allocation atomic with the record put: no two edits can
		// receive the same changeId.
		id, err = b.NextSequence()
		if err != nil {
			return err
		}
		rec.ChangeID = id
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *BoltStore) ChangesSince(sheet string, since uint64) ([][]byte, uint64, error) {
	var raw [][]byte
	var current uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChangelog).Bucket([]byte(sheet))
		if b == nil {
			return nil
		}
		current = b.Sequence()
		c := b.Cursor()
		for k, v := c.Seek(itob(since + 1)); k != nil; k, v = c.Next() {
			// Values are only valid for the life of the transaction.
			cp := make([]byte, len(v))
			copy(cp, v)
			raw = append(raw, cp)
		}
		return nil
	})
	return raw, current, err
}

func (s *BoltStore) MinChange(sheet string) (uint64, error) {
	var min uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChangelog).Bucket([]byte(sheet))
		if b == nil {
			return nil
		}
		k, _ := b.Cursor().First()
		if k != nil {
			min = btoi(k)
		}
		return nil
	})
	return min, err
}

func (s *BoltStore) CurrentVersion(sheet string) (uint64, error) {
	var current uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChangelog).Bucket([]byte(sheet))
		if b != nil {
			current = b.Sequence()
		}
		return nil
	})
	return current, err
}

func (s *BoltStore) ClearChanges(sheet string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketChangelog)
		if parent.Bucket([]byte(sheet)) == nil {
			return nil
		}
		// Dropping the sub-bucket resets its sequence: the next
		// append starts numbering from 1 again.
		return parent.DeleteBucket([]byte(sheet))
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
