package store

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mindtrace/voiceid/internal/apperrors"
)

// SegmentRecord is one accepted utterance persisted as an opaque audio
// blob plus capture metadata.
type SegmentRecord struct {
	ID         string        `msgpack:"id"`
	UserID     string        `msgpack:"user_id"`
	Timestamp  int64         `msgpack:"ts"` // unix nanoseconds, segment start
	Duration   time.Duration `msgpack:"duration"`
	SNR        float64       `msgpack:"snr"`
	SampleRate int           `msgpack:"sample_rate"`
	Audio      []byte        `msgpack:"audio"` // WAV bytes
}

// SegmentStore persists accepted segments.
type SegmentStore interface {
	PutSegment(ctx context.Context, rec SegmentRecord) error
}

var _ SegmentStore = (*Store)(nil)

// PutSegment writes a segment record keyed by (user, start timestamp).
func (s *Store) PutSegment(_ context.Context, rec SegmentRecord) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "encode segment")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(segmentKey(rec.UserID, rec.Timestamp), data)
	})
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeStoreFailed, "put segment %s", rec.ID)
	}
	return nil
}

// ListSegments returns segment metadata for a user in temporal order,
// without the audio payloads.
func (s *Store) ListSegments(_ context.Context, userID string) ([]SegmentRecord, error) {
	var recs []SegmentRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = segmentPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec SegmentRecord
				if err := msgpack.Unmarshal(val, &rec); err != nil {
					return err
				}
				rec.Audio = nil
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeStoreFailed, "list segments for %s", userID)
	}
	return recs, nil
}
