// Package checkpoint remembers how far ingestion has read each repository's
// history.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "ingest_checkpoints"

// Cursor is the ingestion position for one repository
type Cursor struct {
	RepoID        string    `json:"repo_id"`
	LastTimestamp time.Time `json:"last_timestamp"`
	LastCommit    string    `json:"last_commit"`
	Events        int       `json:"events"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists cursors in a bbolt file
type Store struct {
	db *bolt.DB
}

// Open opens or creates the checkpoint file
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the checkpoint file
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cursor for repoID, false when the repository has never
// been ingested
func (s *Store) Get(repoID string) (Cursor, bool, error) {
	var cur Cursor
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(repoID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &cur)
	})
	if err != nil {
		return Cursor{}, false, fmt.Errorf("read checkpoint for %s: %w", repoID, err)
	}
	return cur, found, nil
}

// Put stores the cursor, never moving an existing cursor backwards in time
func (s *Store) Put(cur Cursor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		if data := bucket.Get([]byte(cur.RepoID)); data != nil {
			var prev Cursor
			if err := json.Unmarshal(data, &prev); err == nil && prev.LastTimestamp.After(cur.LastTimestamp) {
				cur.LastTimestamp = prev.LastTimestamp
				cur.LastCommit = prev.LastCommit
			}
		}
		data, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(cur.RepoID), data)
	})
}

// Reset forgets the cursor for repoID
func (s *Store) Reset(repoID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(repoID))
	})
}
