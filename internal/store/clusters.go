package store

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mindtrace/voiceid/internal/apperrors"
)

// SpeakerCluster is one voice-identity cluster owned by a user. The
// centroid and average importance are exact incremental means over
// UtteranceCount observations; individual embeddings are never retained.
type SpeakerCluster struct {
	UserID         string    `msgpack:"user_id"`
	ClusterID      string    `msgpack:"cluster_id"`
	Index          int       `msgpack:"index"`
	Centroid       []float64 `msgpack:"centroid"`
	UtteranceCount int       `msgpack:"utterance_count"`
	AvgImportance  float64   `msgpack:"avg_importance"`
	Labels         []string  `msgpack:"labels,omitempty"`
}

// ClusterStore is the persistence contract the speaker identifier
// depends on.
type ClusterStore interface {
	// ListClusters returns all clusters for a user in creation order.
	ListClusters(ctx context.Context, userID string) ([]SpeakerCluster, error)

	// PutCluster creates or replaces a cluster record.
	PutCluster(ctx context.Context, c SpeakerCluster) error
}

var _ ClusterStore = (*Store)(nil)

// ListClusters returns every cluster for userID, ordered by index.
func (s *Store) ListClusters(_ context.Context, userID string) ([]SpeakerCluster, error) {
	var clusters []SpeakerCluster

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = clusterPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c SpeakerCluster
				if err := msgpack.Unmarshal(val, &c); err != nil {
					return err
				}
				clusters = append(clusters, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeStoreFailed, "list clusters for %s", userID)
	}
	return clusters, nil
}

// PutCluster writes a cluster record keyed by (user, index).
func (s *Store) PutCluster(_ context.Context, c SpeakerCluster) error {
	data, err := msgpack.Marshal(c)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "encode cluster")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(clusterKey(c.UserID, c.Index), data)
	})
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeStoreFailed, "put cluster %s", c.ClusterID)
	}
	return nil
}

// SetClusterLabels replaces the free-text labels on a cluster.
func (s *Store) SetClusterLabels(ctx context.Context, userID string, index int, labels []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(clusterKey(userID, index))
		if err != nil {
			return err
		}
		var c SpeakerCluster
		if err := item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &c)
		}); err != nil {
			return err
		}
		c.Labels = labels
		data, err := msgpack.Marshal(c)
		if err != nil {
			return err
		}
		return txn.Set(clusterKey(userID, index), data)
	})
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeStoreFailed, "set labels on cluster %d for %s", index, userID)
	}
	return nil
}
