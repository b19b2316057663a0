// Copyright 2024-2026 Aiku AI

package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Store persists one JSON document per logical key under a data directory,
// named <key>.data.json.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".data.json")
}

// Has reports whether a document exists for the key.
func (s *Store) Has(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Read unmarshals the document for key into v. Returns os.ErrNotExist
// (wrapped) when the document is absent.
func (s *Store) Read(key string, v any) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return errors.Wrapf(err, "failed to read data document %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to decode data document %s", key)
	}
	return nil
}

// Write marshals v and replaces the document for key.
func (s *Store) Write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode data document %s", key)
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write data document %s", key)
	}
	return nil
}

// HashKey derives a filesystem-safe document key from an arbitrary name,
// e.g. the remote account username for the session-state document.
func HashKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}
