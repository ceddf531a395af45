// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable for the capture pipeline and its surfaces.
type Config struct {
	HTTPAddr      string
	InferenceAddr string
	DataDir       string

	// Capture framing
	SampleRate int
	FrameSize  int // samples per frame, one VAD inference unit

	// Segmentation
	VADThreshold         float64
	SilenceDuration      float64 // seconds of hang-over before a segment closes
	MinSpeechDuration    float64 // seconds below which a segment is discarded
	MaxRecordingDuration float64 // seconds after which a segment is force-closed

	// Quality gate
	SNRThreshold float64 // dB

	// Clustering
	SimilarityThreshold float64

	// Dispatch
	DispatchQueueSize int
	DispatchTimeout   time.Duration

	// Device reopen policy
	DeviceMaxRetries int
}

// Load reads configuration from the environment with defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8000"),
		InferenceAddr:        getEnv("INFERENCE_ADDR", "http://localhost:50051"),
		DataDir:              getEnv("DATA_DIR", "./data"),
		SampleRate:           getEnvInt("SAMPLE_RATE", 16000),
		FrameSize:            getEnvInt("FRAME_SIZE", 512),
		VADThreshold:         getEnvFloat("VAD_THRESHOLD", 0.85),
		SilenceDuration:      getEnvFloat("SILENCE_DURATION", 2.0),
		MinSpeechDuration:    getEnvFloat("MIN_SPEECH_DURATION", 1.0),
		MaxRecordingDuration: getEnvFloat("MAX_RECORDING_DURATION", 30.0),
		SNRThreshold:         getEnvFloat("SNR_THRESHOLD", 10.0),
		SimilarityThreshold:  getEnvFloat("SIMILARITY_THRESHOLD", 0.85),
		DispatchQueueSize:    getEnvInt("DISPATCH_QUEUE_SIZE", 16),
		DispatchTimeout:      getEnvDuration("DISPATCH_TIMEOUT", 60*time.Second),
		DeviceMaxRetries:     getEnvInt("DEVICE_MAX_RETRIES", 5),
	}
}

// FrameDuration returns the duration of one frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(float64(c.FrameSize) / float64(c.SampleRate) * float64(time.Second))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
