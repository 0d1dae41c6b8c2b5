package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"ragqa/internal/domain"
)

var (
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")
)

// BoltStore persists computed embeddings so unchanged text is not sent to
// the embedding service again after a restart or re-upload. It holds
// vectors only; the searchable index is always rebuilt in memory.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	// a second process holding the file lock fails fast instead of blocking
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEmbeddings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
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

type storedVector struct {
	Vector []float32 `json:"v"`
}

// Key identifies one (mode, text) pair.
func Key(mode domain.EmbeddingMode, text string) []byte {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum(nil)
}

// GetVectors looks up keys and returns the vectors found, by key position.
func (s *BoltStore) GetVectors(keys [][]byte) (map[int][]float32, error) {
	found := make(map[int][]float32)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, k := range keys {
			data := b.Get(k)
			if data == nil {
				continue
			}
			var sv storedVector
			if err := json.Unmarshal(data, &sv); err != nil {
				continue // corrupted entries are recomputed
			}
			found[i] = sv.Vector
		}
		return nil
	})
	return found, err
}

// PutVectors stores vectors[i] under keys[i] in one transaction.
func (s *BoltStore) PutVectors(keys [][]byte, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("key/vector count mismatch: %d keys, %d vectors", len(keys), len(vectors))
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for i, k := range keys {
			data, err := json.Marshal(storedVector{Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of cached vectors.
func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
