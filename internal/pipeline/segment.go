// Package pipeline implements the capture-side processing chain:
// speech segmentation, quality gating, and asynchronous dispatch of
// accepted segments.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Segment is a contiguous run of frames judged to contain one
// utterance. It is owned by the segmenter until handed to the
// dispatcher; after hand-off it is never reused.
type Segment struct {
	ID         string
	UserID     string
	Start      time.Time
	Samples    []int16
	SampleRate int

	// SNR is filled in by the quality gate when the segment is scored.
	SNR float64
}

func newSegment(userID string, start time.Time, sampleRate int) *Segment {
	return &Segment{
		ID:         uuid.NewString(),
		UserID:     userID,
		Start:      start,
		SampleRate: sampleRate,
	}
}

// Duration returns the accumulated audio duration.
func (s *Segment) Duration() time.Duration {
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// Seconds returns the accumulated audio duration in seconds.
func (s *Segment) Seconds() float64 {
	return float64(len(s.Samples)) / float64(s.SampleRate)
}
