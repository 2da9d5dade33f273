// Package bbolt provides a BBolt-backed implementation of store.Store.
package bbolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/calderw/bastion/store"
)

var usersBucket = []byte("users")

// Store implements store.Store backed by a BBolt database. BBolt serializes
// writers internally, so Put's existence check and write are atomic.
type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usersBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating users bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromFile opens a BBolt database at path and returns a new Store.
func NewFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(userID string, rec *store.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if b.Get([]byte(userID)) != nil {
			return store.ErrAlreadyRegistered
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
}

func (s *Store) Get(userID string) (*store.Record, error) {
	var rec store.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(usersBucket).Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%s: %w", userID, store.ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) List() (map[string]*store.Record, error) {
	out := make(map[string]*store.Record)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(k, v []byte) error {
			var rec store.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding record for %s: %w", k, err)
			}
			out[string(k)] = &rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AttachSecondFactor(userID, secret string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%s: %w", userID, store.ErrNotFound)
		}
		var rec store.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.TOTPEnabled = true
		rec.TOTPSecret = secret
		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), updated)
	})
}
