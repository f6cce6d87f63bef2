package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// recordBucket stores analysis records keyed by slot index
	recordBucket = "analyses"

	// metaBucket stores bookkeeping values
	metaBucket = "meta"

	// countKey tracks the total number of records ever written
	countKey = "count"
)

// Record is one successfully analyzed position
type Record struct {
	Placement   string   `json:"placement"`
	Orientation string   `json:"orientation"`
	WhiteToMove bool     `json:"white_to_move"`
	Moves       []string `json:"moves"`
	Timestamp   int64    `json:"timestamp"`
}

// History persists analysis results to a BoltDB file. Writes wrap around
// after maxSize records, so the file holds a bounded window of recent
// analyses.
type History struct {
	db      *bbolt.DB
	maxSize int
	count   uint64
}

// OpenHistory opens (or creates) the history database
func OpenHistory(path string, maxSize int) (*History, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("invalid history size: %d", maxSize)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(recordBucket)); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	h := &History{db: db, maxSize: maxSize}

	count, err := h.loadCount()
	if err != nil {
		db.Close()
		return nil, err
	}
	h.count = count

	return h, nil
}

// Append stores one analysis record
func (h *History) Append(rec Record) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		// Slot index wraps around, overwriting the oldest record.
		slot := h.count % uint64(h.maxSize)
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, slot)

		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("store record: %w", err)
		}

		meta := tx.Bucket([]byte(metaBucket))
		countBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(countBytes, h.count+1)
		return meta.Put([]byte(countKey), countBytes)
	})
	if err != nil {
		return err
	}

	h.count++
	return nil
}

// Recent returns up to n most recent records, newest first
func (h *History) Recent(n int) ([]Record, error) {
	stored := int(h.count)
	if stored > h.maxSize {
		stored = h.maxSize
	}
	if n > stored {
		n = stored
	}
	if n <= 0 {
		return nil, nil
	}

	records := make([]Record, 0, n)

	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		for i := 0; i < n; i++ {
			slot := (h.count - 1 - uint64(i)) % uint64(h.maxSize)
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, slot)

			data := b.Get(key)
			if data == nil {
				continue
			}

			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Count returns the total number of records ever written
func (h *History) Count() uint64 {
	return h.count
}

// Close closes the underlying database
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) loadCount() (uint64, error) {
	var count uint64
	err := h.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if meta == nil {
			return nil
		}
		if data := meta.Get([]byte(countKey)); len(data) == 8 {
			count = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return count, err
}
