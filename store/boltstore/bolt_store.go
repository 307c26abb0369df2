// Package boltstore persists the session record in a local bbolt file,
// surviving process restarts the way a browser session survives page
// reloads.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"go.pilab.hu/authflow/domain"
)

const (
	sessionBucket = "session"
	recordKey     = "current"
)

// BoltStore implements store.SessionStore on top of a bbolt database.
// The whole record is stored as one value under one key, so every write
// and delete is atomic by virtue of a single bbolt transaction.
type BoltStore struct {
	db *bbolt.DB
}

// Open initializes (creating if necessary) the database at dbPath.
func Open(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Save implements store.SessionStore.Save.
func (s *BoltStore) Save(_ context.Context, record *domain.SessionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(recordKey), raw)
	})
}

// Load implements store.SessionStore.Load.
func (s *BoltStore) Load(_ context.Context) (*domain.SessionRecord, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(sessionBucket)).Get([]byte(recordKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &record, nil
}

// Clear implements store.SessionStore.Clear.
func (s *BoltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(recordKey))
	})
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
