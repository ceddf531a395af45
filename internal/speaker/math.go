package speaker

import (
	"math"

	"github.com/mindtrace/voiceid/internal/apperrors"
)

// CosineSimilarity returns 1 - cosine_distance between a and b, where
// cosine_distance = 1 - (a·b)/(‖a‖·‖b‖).
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.Newf(apperrors.CodeDataIntegrity, "embedding dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, apperrors.New(apperrors.CodeInvalidArgument, "empty embedding")
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, apperrors.New(apperrors.CodeDataIntegrity, "zero-norm embedding")
	}

	distance := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return 1 - distance, nil
}

// incrementalMean folds one observation into a running componentwise
// mean over count prior observations.
func incrementalMean(mean, x []float64, count int) []float64 {
	out := make([]float64, len(mean))
	n := float64(count)
	for i := range mean {
		out[i] = (mean[i]*n + x[i]) / (n + 1)
	}
	return out
}
