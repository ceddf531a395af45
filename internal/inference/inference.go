// Package inference provides clients for the external model capabilities:
// per-frame speech probability (VAD) and speaker embedding extraction.
package inference

import (
	"context"

	"github.com/mindtrace/voiceid/internal/audio"
)

// VadModel scores a single frame with a speech probability in [0,1].
// Inference must be fast relative to the frame duration; a slow model
// makes the capture loop fall behind.
type VadModel interface {
	Infer(ctx context.Context, frame audio.Frame) (float64, error)
}

// EmbeddingModel turns a WAV-encoded segment into a fixed-dimension
// speaker embedding.
type EmbeddingModel interface {
	Extract(ctx context.Context, wavBytes []byte) ([]float64, error)
}
