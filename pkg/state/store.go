// Package state persists connector state (downloaded models, routine revisions, run
// provenance) in a local BadgerDB so a restarted connector resumes without
// re-downloading or re-parsing. Values are JSON encoded and zstd compressed.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

// Config holds state store configuration
type Config struct {
	// Path is the directory holding the database. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory, for tests and dry runs.
	InMemory bool
	// CompressionLevel selects the zstd level: 1 fastest, 4 best.
	CompressionLevel int
}

// Store is a namespaced key/value store
type Store struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens or creates the store described by cfg
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("state path is required")
		}
		opts = badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	}
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(cfg.CompressionLevel)))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Store{db: db, encoder: encoder, decoder: decoder}, nil
}

func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func storeKey(namespace, key string) []byte {
	return []byte(namespace + "/" + key)
}

// Put stores v under namespace/key
func (s *Store) Put(namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", namespace, key, err)
	}
	compressed := s.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(namespace, key), compressed)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get loads namespace/key into v. It reports false when the key does not exist.
func (s *Store) Get(namespace, key string, v any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(namespace, key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", namespace, key, err)
	}

	if err := s.decode(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (s *Store) decode(compressed []byte, v any) error {
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Delete removes namespace/key. Deleting a missing key is not an error.
func (s *Store) Delete(namespace, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(namespace, key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Keys lists the keys stored in namespace
func (s *Store) Keys(namespace string) ([]string, error) {
	prefix := []byte(namespace + "/")
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", namespace, err)
	}
	return keys, nil
}

// LoadAll decodes every value stored in namespace, keyed by key
func LoadAll[T any](s *Store, namespace string) (map[string]T, error) {
	prefix := []byte(namespace + "/")
	out := make(map[string]T)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), string(prefix))
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var v T
			if err := s.decode(raw, &v); err != nil {
				return fmt.Errorf("failed to decode %s/%s: %w", namespace, key, err)
			}
			out[key] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", namespace, err)
	}
	return out, nil
}

// Persist flushes pending writes to disk and reclaims value log space
func (s *Store) Persist() error {
	if s.db.Opts().InMemory {
		return nil
	}
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("failed to sync state store: %w", err)
	}
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("failed to collect value log: %w", err)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}
