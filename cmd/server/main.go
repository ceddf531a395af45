// Voice identity server - continuous listening, speech segmentation,
// and online speaker clustering.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mindtrace/voiceid/internal/audio"
	"github.com/mindtrace/voiceid/internal/config"
	"github.com/mindtrace/voiceid/internal/inference"
	"github.com/mindtrace/voiceid/internal/listener"
	"github.com/mindtrace/voiceid/internal/pipeline"
	"github.com/mindtrace/voiceid/internal/server"
	"github.com/mindtrace/voiceid/internal/speaker"
	"github.com/mindtrace/voiceid/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	// .env is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// A dead inference service disables listening up front rather than
	// failing on every frame.
	models, err := inference.NewClient(cfg.InferenceAddr, cfg.SampleRate)
	if err != nil {
		slog.Error("inference service unavailable", "addr", cfg.InferenceAddr, "error", err)
		os.Exit(1)
	}

	identifier := speaker.NewIdentifier(db, cfg.SimilarityThreshold)
	journal := pipeline.NewJournal(pipeline.JournalMaxEntries, pipeline.JournalEventBuffer)
	gate := pipeline.NewQualityGate(cfg.SNRThreshold)

	dispatcher := pipeline.NewDispatcher(db, models, identifier, journal, cfg.DispatchQueueSize, cfg.DispatchTimeout)
	dispatcher.Start()
	defer dispatcher.Stop()

	segCfg := pipeline.SegmenterConfig{
		SampleRate:           cfg.SampleRate,
		FrameSize:            cfg.FrameSize,
		VADThreshold:         cfg.VADThreshold,
		SilenceDuration:      cfg.SilenceDuration,
		MinSpeechDuration:    cfg.MinSpeechDuration,
		MaxRecordingDuration: cfg.MaxRecordingDuration,
	}
	newSource := func() audio.Source {
		return audio.NewDevice(cfg.SampleRate, cfg.FrameSize)
	}
	onSegment := func(seg *pipeline.Segment) {
		if gate.Accept(seg) {
			dispatcher.Enqueue(seg)
		}
	}
	lifecycle := listener.New(segCfg, cfg.DeviceMaxRetries, models, newSource, onSegment)
	defer lifecycle.Stop()

	srv := server.New(lifecycle, identifier, db, journal, gate)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("voiceid server starting", "http", cfg.HTTPAddr, "inference", cfg.InferenceAddr, "data_dir", cfg.DataDir)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	lifecycle.Stop()
	dispatcher.Stop()
	slog.Info("shutdown complete")
}
