package store

import "fmt"

// clusterKey builds the key for one speaker cluster. The index is
// zero-padded so lexicographic key order matches creation order.
func clusterKey(userID string, index int) []byte {
	return []byte(fmt.Sprintf("spk:%s:%06d", userID, index))
}

// clusterPrefix lists all clusters for a user.
func clusterPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("spk:%s:", userID))
}

// segmentKey builds the key for one persisted segment. Nanosecond
// timestamps give uniqueness and total temporal ordering per user.
func segmentKey(userID string, tsNano int64) []byte {
	return []byte(fmt.Sprintf("seg:%s:%020d", userID, tsNano))
}

// segmentPrefix lists all segments for a user.
func segmentPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("seg:%s:", userID))
}
