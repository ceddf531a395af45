package pipeline

import (
	"sync"
	"time"
)

// Utterance is one accepted, identified segment as seen by observers.
type Utterance struct {
	SegmentID string        `json:"segment_id"`
	UserID    string        `json:"user_id"`
	SpeakerID string        `json:"speaker_id"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	SNR       float64       `json:"snr_db"`
}

// Journal keeps a bounded in-memory log of recent utterances and fans
// them out on a non-blocking event channel.
type Journal struct {
	mu       sync.RWMutex
	entries  []Utterance
	maxSize  int
	eventsCh chan Utterance
}

// NewJournal creates a journal holding at most maxEntries.
func NewJournal(maxEntries, eventBuffer int) *Journal {
	return &Journal{
		entries:  make([]Utterance, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Utterance, eventBuffer),
	}
}

// Add records an utterance and emits it to observers.
func (j *Journal) Add(u Utterance) {
	j.mu.Lock()
	j.entries = append(j.entries, u)
	if len(j.entries) > j.maxSize {
		j.entries = j.entries[len(j.entries)-j.maxSize:]
	}
	j.mu.Unlock()

	select {
	case j.eventsCh <- u:
	default:
	}
}

// Recent returns utterances from the last N seconds, oldest first.
func (j *Journal) Recent(seconds int) []Utterance {
	j.mu.RLock()
	defer j.mu.RUnlock()

	cutoff := time.Now().Add(-time.Duration(seconds) * time.Second)
	var out []Utterance
	for _, e := range j.entries {
		if !e.Start.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the channel of accepted utterances.
func (j *Journal) Events() <-chan Utterance {
	return j.eventsCh
}
