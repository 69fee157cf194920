package threads

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var threadsBucket = []byte("threads")

// BoltBackend keeps one record per thread in a single bucket. Keys are the
// zero-padded position so a cursor walk restores order.
type BoltBackend struct {
	db *bolt.DB
}

func OpenBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Name() string { return "bolt" }

func (b *BoltBackend) Load(_ context.Context) ([]Thread, error) {
	var out []Thread
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(threadsBucket)
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			var t Thread
			if err := json.Unmarshal(v, &t); err != nil {
				// Skip malformed entries instead of failing the whole load
				return nil
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltBackend) Save(_ context.Context, threads []Thread) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		// Recreate bucket to reflect the given snapshot exactly.
		if tx.Bucket(threadsBucket) != nil {
			if err := tx.DeleteBucket(threadsBucket); err != nil {
				return err
			}
		}
		bk, err := tx.CreateBucket(threadsBucket)
		if err != nil {
			return err
		}
		for i, t := range threads {
			enc, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := bk.Put([]byte(fmt.Sprintf("%08d", i)), enc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Close() error { return b.db.Close() }
