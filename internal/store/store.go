// Package store persists speaker clusters and accepted audio segments
// in an embedded BadgerDB key-value store.
//
// Key layout:
//
//	spk:{user_id}:{index}  → msgpack-encoded SpeakerCluster
//	seg:{user_id}:{ts_ns}  → msgpack-encoded SegmentRecord (audio inline)
//
// Per-key writes are atomic badger transactions; callers needing
// read-modify-write atomicity across a user's cluster set serialize
// externally (see the speaker package).
package store

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/mindtrace/voiceid/internal/apperrors"
)

// Store wraps a badger database.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreFailed, "open store")
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a memory-only store. Used by tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreFailed, "open in-memory store")
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
