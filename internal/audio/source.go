// Package audio handles audio device capture
package audio

import (
	"time"
)

// Frame is a fixed-size block of mono PCM samples, the atomic unit of
// VAD inference and capture timing.
type Frame struct {
	Samples   []int16
	Timestamp time.Time
}

// Duration returns the frame duration at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	return time.Duration(float64(len(f.Samples)) / float64(sampleRate) * float64(time.Second))
}

// Source acquires fixed-size, fixed-rate PCM frames from an input
// device. The device is an exclusive resource: Open acquires it, Close
// releases it, and implementations must release on every exit path.
type Source interface {
	// Open acquires the input device.
	Open() error

	// Read blocks for the next frame. A non-nil error means the current
	// segment should be abandoned and the device reopened.
	Read() (Frame, error)

	// Close releases the device. Safe to call on an unopened source.
	Close() error
}
