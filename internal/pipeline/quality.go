package pipeline

import (
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
)

const (
	maxWindowSamples = 1024
	minWindowSamples = 100
	noisePercentile  = 20.0
)

// QualityGate estimates the signal-to-noise ratio of a closed segment
// and rejects segments below the configured threshold.
type QualityGate struct {
	// thresholdDB is adjustable at runtime.
	thresholdDB atomic.Uint64
}

// NewQualityGate creates a gate with the given SNR threshold in dB.
func NewQualityGate(thresholdDB float64) *QualityGate {
	g := &QualityGate{}
	g.thresholdDB.Store(math.Float64bits(thresholdDB))
	return g
}

// SetThreshold adjusts the SNR threshold at runtime.
func (g *QualityGate) SetThreshold(db float64) {
	g.thresholdDB.Store(math.Float64bits(db))
}

// Threshold returns the current SNR threshold in dB.
func (g *QualityGate) Threshold() float64 {
	return math.Float64frombits(g.thresholdDB.Load())
}

// Accept scores the segment, records the SNR on it, and reports whether
// it clears the threshold.
func (g *QualityGate) Accept(seg *Segment) bool {
	seg.SNR = SNR(seg.Samples)
	ok := seg.SNR >= g.Threshold()
	if !ok {
		slog.Info("segment rejected by quality gate", "user_id", seg.UserID, "snr_db", seg.SNR, "threshold_db", g.Threshold())
	}
	return ok
}

// SNR estimates the signal-to-noise ratio in dB for 16-bit PCM samples.
//
// Signal power is the mean squared amplitude of the whole buffer. The
// noise floor is the 20th percentile of mean squared amplitudes over
// 50%-overlapping windows of min(1024, len/10) samples. Degenerate
// inputs (too few windows, zero power) score 0, which sits below any
// positive threshold.
func SNR(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	amp := make([]float64, len(samples))
	for i, s := range samples {
		amp[i] = float64(s) / 32768.0
	}

	var signalPower float64
	for _, a := range amp {
		signalPower += a * a
	}
	signalPower /= float64(len(amp))

	windowSize := min(maxWindowSamples, len(amp)/10)
	if windowSize < minWindowSamples {
		return 0
	}

	var windowPowers []float64
	for i := 0; i < len(amp)-windowSize; i += windowSize / 2 {
		var p float64
		for _, a := range amp[i : i+windowSize] {
			p += a * a
		}
		windowPowers = append(windowPowers, p/float64(windowSize))
	}
	if len(windowPowers) < 2 {
		return 0
	}

	noisePower := percentile(windowPowers, noisePercentile)
	if noisePower <= 0 || signalPower <= 0 {
		return 0
	}

	return 10 * math.Log10(signalPower/noisePower)
}

// percentile computes the p-th percentile with linear interpolation
// between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
