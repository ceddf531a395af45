package pipeline

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/mindtrace/voiceid/internal/audio"
)

// SegmentHandler receives a closed candidate segment. Ownership of the
// segment moves to the handler.
type SegmentHandler func(*Segment)

// SegmenterConfig holds the segmentation thresholds.
type SegmenterConfig struct {
	SampleRate           int
	FrameSize            int
	VADThreshold         float64
	SilenceDuration      float64 // seconds
	MinSpeechDuration    float64 // seconds
	MaxRecordingDuration float64 // seconds
}

// Segmenter is the two-state speech segmentation machine. It consumes
// one (frame, confidence) pair per fixed time step and emits candidate
// segments to its handler.
//
// All elapsed-time decisions use frame-count arithmetic, not the wall
// clock, so behavior is deterministic for a given confidence sequence.
//
// Not safe for concurrent use; Process is called only from the capture
// loop.
type Segmenter struct {
	cfg     SegmenterConfig
	userID  string
	onClose SegmentHandler

	// vadThreshold is read per frame by the capture loop and written
	// rarely by the config surface, hence the atomic bits.
	vadThreshold atomic.Uint64

	speaking      bool
	current       *Segment
	silenceFrames int
}

// NewSegmenter creates a segmenter in the Idle state.
func NewSegmenter(userID string, cfg SegmenterConfig, onClose SegmentHandler) *Segmenter {
	s := &Segmenter{
		cfg:     cfg,
		userID:  userID,
		onClose: onClose,
	}
	s.vadThreshold.Store(math.Float64bits(cfg.VADThreshold))
	return s
}

// SetVADThreshold adjusts the speech-detection threshold at runtime.
func (s *Segmenter) SetVADThreshold(t float64) {
	s.vadThreshold.Store(math.Float64bits(t))
}

// VADThreshold returns the current speech-detection threshold.
func (s *Segmenter) VADThreshold() float64 {
	return math.Float64frombits(s.vadThreshold.Load())
}

// Speaking reports whether the machine is in the SpeechActive state.
func (s *Segmenter) Speaking() bool { return s.speaking }

func (s *Segmenter) frameSeconds() float64 {
	return float64(s.cfg.FrameSize) / float64(s.cfg.SampleRate)
}

// Process advances the state machine by one frame.
func (s *Segmenter) Process(frame audio.Frame, confidence float64) {
	threshold := s.VADThreshold()

	if !s.speaking {
		if confidence > threshold {
			s.speaking = true
			s.current = newSegment(s.userID, frame.Timestamp, s.cfg.SampleRate)
			s.current.Samples = append(s.current.Samples, frame.Samples...)
			s.silenceFrames = 0
			slog.Debug("speech detected", "user_id", s.userID, "confidence", confidence)
		}
		return
	}

	// SpeechActive: the frame is buffered either way so trailing audio
	// around the hang-over is kept.
	s.current.Samples = append(s.current.Samples, frame.Samples...)
	if confidence > threshold {
		s.silenceFrames = 0
	} else {
		s.silenceFrames++
	}

	if float64(s.silenceFrames)*s.frameSeconds() >= s.cfg.SilenceDuration {
		s.closeSegment(false)
		return
	}

	// Forced cutoff resets to Idle even if speech is still ongoing;
	// the next high-confidence frame starts a fresh segment. The small
	// window of trailing audio at the boundary is dropped.
	if s.current.Seconds() >= s.cfg.MaxRecordingDuration {
		s.closeSegment(true)
	}
}

// Abandon discards the current segment and returns to Idle. Called when
// the frame source fails mid-read.
func (s *Segmenter) Abandon() {
	if s.speaking {
		slog.Debug("segment abandoned", "user_id", s.userID, "buffered", s.current.Duration())
	}
	s.reset()
}

func (s *Segmenter) closeSegment(forced bool) {
	seg := s.current
	dur := seg.Seconds()
	s.reset()

	if dur < s.cfg.MinSpeechDuration {
		slog.Debug("segment too short, discarded", "user_id", s.userID, "seconds", dur)
		return
	}
	if forced {
		slog.Info("max recording duration reached, closing segment", "user_id", s.userID, "seconds", dur)
	}
	s.onClose(seg)
}

func (s *Segmenter) reset() {
	s.speaking = false
	s.current = nil
	s.silenceFrames = 0
}
