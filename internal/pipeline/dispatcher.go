package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mindtrace/voiceid/internal/audio"
	"github.com/mindtrace/voiceid/internal/inference"
	"github.com/mindtrace/voiceid/internal/resilience"
	"github.com/mindtrace/voiceid/internal/store"
	"github.com/mindtrace/voiceid/internal/trace"
)

// SpeakerResolver assigns an embedding to a cluster id.
type SpeakerResolver interface {
	Identify(ctx context.Context, userID string, embedding []float64, importance float64) (string, error)
}

// Dispatcher hands accepted segments off for asynchronous processing so
// the capture loop's per-frame budget is never blocked by network or
// disk I/O. A single worker drains the queue, preserving the strict
// temporal order of segments from a session.
type Dispatcher struct {
	segments store.SegmentStore
	embedder inference.EmbeddingModel
	resolver SpeakerResolver
	journal  *Journal
	breaker  *resilience.Breaker
	timeout  time.Duration

	queue chan *Segment
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(segments store.SegmentStore, embedder inference.EmbeddingModel, resolver SpeakerResolver, journal *Journal, queueSize int, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		segments: segments,
		embedder: embedder,
		resolver: resolver,
		journal:  journal,
		breaker:  resilience.NewBreaker(resilience.FastConfig()),
		timeout:  timeout,
		queue:    make(chan *Segment, queueSize),
	}
}

// Start launches the dispatch worker.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for seg := range d.queue {
				d.process(seg)
			}
		}()
	})
}

// Enqueue hands off a segment without blocking. If the queue is full
// the segment is dropped and logged; dispatch failures never propagate
// back into the capture loop.
func (d *Dispatcher) Enqueue(seg *Segment) {
	select {
	case d.queue <- seg:
	default:
		slog.Warn("dispatch queue full, dropping segment", "segment_id", seg.ID, "user_id", seg.UserID)
	}
}

// Stop drains the queue and waits for in-flight work.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) process(seg *Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ctx, span := trace.StartSpan(ctx, "dispatch_segment")
	defer span.End()
	span.SetAttr("segment_id", seg.ID)
	span.SetAttr("duration", seg.Duration().String())
	log := trace.Logger(ctx)

	wav := audio.EncodeWAV(seg.Samples, seg.SampleRate)

	// Persist first so the audio survives an embedding failure.
	rec := store.SegmentRecord{
		ID:         seg.ID,
		UserID:     seg.UserID,
		Timestamp:  seg.Start.UnixNano(),
		Duration:   seg.Duration(),
		SNR:        seg.SNR,
		SampleRate: seg.SampleRate,
		Audio:      wav,
	}
	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		return d.segments.PutSegment(ctx, rec)
	})
	if err != nil {
		log.Error("segment persist failed", "segment_id", seg.ID, "error", err)
		return
	}

	embedding, err := resilience.ExecuteWithResult(d.breaker, func() ([]float64, error) {
		return d.embedder.Extract(ctx, wav)
	})
	if err != nil {
		log.Error("embedding extraction failed", "segment_id", seg.ID, "error", err)
		return
	}
	span.SetAttr("embedding_dim", len(embedding))

	speakerID, err := d.resolver.Identify(ctx, seg.UserID, embedding, DefaultImportance)
	if err != nil {
		log.Warn("speaker identification degraded", "segment_id", seg.ID, "speaker_id", speakerID, "error", err)
	}

	d.journal.Add(Utterance{
		SegmentID: seg.ID,
		UserID:    seg.UserID,
		SpeakerID: speakerID,
		Start:     seg.Start,
		Duration:  seg.Duration(),
		SNR:       seg.SNR,
	})
	log.Info("segment dispatched", "segment_id", seg.ID, "speaker_id", speakerID, "snr_db", seg.SNR)
}
