// Package speaker assigns utterance embeddings to per-user voice
// identity clusters with an online, unsupervised algorithm.
package speaker

import (
	"context"
	"fmt"

	"github.com/mindtrace/voiceid/internal/apperrors"
	"github.com/mindtrace/voiceid/internal/store"
	"github.com/mindtrace/voiceid/internal/syncx"
	"github.com/mindtrace/voiceid/internal/trace"
)

// Unknown is the sentinel identity returned when a single identify call
// fails. It is never persisted.
const Unknown = "speaker_unknown"

// Identifier performs nearest-cluster matching against a user's cluster
// set and maintains running statistics per cluster.
type Identifier struct {
	clusters  store.ClusterStore
	threshold float64

	// Concurrent identify calls for one user would race on the
	// read-then-write of cluster statistics, silently losing an update.
	// The per-user lock is held across the whole fetch-match-persist
	// sequence.
	locks *syncx.KeyedMutex
}

// NewIdentifier creates an identifier over the given cluster store.
func NewIdentifier(clusters store.ClusterStore, similarityThreshold float64) *Identifier {
	return &Identifier{
		clusters:  clusters,
		threshold: similarityThreshold,
		locks:     syncx.NewKeyedMutex(),
	}
}

// Identify assigns the embedding to the nearest existing cluster for
// userID, or creates a new one. Returns the cluster id.
//
// On any failure the returned id is the Unknown sentinel and the error
// describes the cause; stored state is untouched. The caller may ignore
// the error, the call never blocks indefinitely.
func (id *Identifier) Identify(ctx context.Context, userID string, embedding []float64, importance float64) (string, error) {
	ctx, span := trace.StartSpan(ctx, "identify_speaker")
	defer span.End()
	span.SetAttr("user_id", userID)
	log := trace.Logger(ctx)

	if len(embedding) == 0 {
		return Unknown, apperrors.New(apperrors.CodeInvalidArgument, "empty embedding")
	}

	id.locks.Lock(userID)
	defer id.locks.Unlock(userID)

	clusters, err := id.clusters.ListClusters(ctx, userID)
	if err != nil {
		log.Error("cluster store unreachable", "user_id", userID, "error", err)
		return Unknown, err
	}

	if len(clusters) == 0 {
		return id.createCluster(ctx, userID, 0, embedding, importance)
	}

	best := -1
	bestSim := 0.0
	for i := range clusters {
		sim, err := CosineSimilarity(embedding, clusters[i].Centroid)
		if err != nil {
			// Dimension mismatch rejects this single call without
			// touching stored state.
			log.Error("cluster comparison failed", "user_id", userID, "cluster_id", clusters[i].ClusterID, "error", err)
			return Unknown, err
		}
		if best < 0 || sim > bestSim {
			best = i
			bestSim = sim
		}
	}
	span.SetAttr("best_similarity", bestSim)

	if bestSim >= id.threshold {
		matched := clusters[best]
		oldCount := matched.UtteranceCount
		matched.Centroid = incrementalMean(matched.Centroid, embedding, oldCount)
		matched.AvgImportance = (matched.AvgImportance*float64(oldCount) + importance) / float64(oldCount+1)
		matched.UtteranceCount = oldCount + 1

		if err := id.clusters.PutCluster(ctx, matched); err != nil {
			log.Error("cluster update failed", "cluster_id", matched.ClusterID, "error", err)
			return Unknown, err
		}
		log.Info("matched speaker cluster", "cluster_id", matched.ClusterID, "similarity", fmt.Sprintf("%.2f", bestSim), "utterances", matched.UtteranceCount)
		return matched.ClusterID, nil
	}

	return id.createCluster(ctx, userID, len(clusters), embedding, importance)
}

func (id *Identifier) createCluster(ctx context.Context, userID string, index int, embedding []float64, importance float64) (string, error) {
	log := trace.Logger(ctx)

	c := store.SpeakerCluster{
		UserID:         userID,
		ClusterID:      fmt.Sprintf("%s_speaker_%d", userID, index),
		Index:          index,
		Centroid:       append([]float64(nil), embedding...),
		UtteranceCount: 1,
		AvgImportance:  importance,
	}
	if err := id.clusters.PutCluster(ctx, c); err != nil {
		log.Error("cluster create failed", "cluster_id", c.ClusterID, "error", err)
		return Unknown, err
	}
	log.Info("created speaker cluster", "cluster_id", c.ClusterID)
	return c.ClusterID, nil
}
