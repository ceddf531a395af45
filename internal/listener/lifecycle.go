// Package listener supervises the capture session: one background loop
// running FrameSource → VAD → SpeechSegmenter, with at most one active
// listener system-wide.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mindtrace/voiceid/internal/apperrors"
	"github.com/mindtrace/voiceid/internal/audio"
	"github.com/mindtrace/voiceid/internal/inference"
	"github.com/mindtrace/voiceid/internal/pipeline"
	"github.com/mindtrace/voiceid/internal/resilience"
	"github.com/mindtrace/voiceid/internal/syncx"
)

// State is the externally visible listener state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateUnavailable
)

func (s State) String() string {
	return [...]string{"idle", "listening", "unavailable"}[s]
}

// Status reports the current listener state and, when listening, the
// active user.
type Status struct {
	State  State  `json:"state"`
	UserID string `json:"user_id,omitempty"`
}

// vadStallDelay is how long the capture loop sleeps when VAD inference
// fails before trying the next frame.
const vadStallDelay = 500 * time.Millisecond

// SourceFactory builds a frame source for a new session. Injected so
// tests can substitute a fake device.
type SourceFactory func() audio.Source

// Lifecycle owns the single optional capture session and is the only
// way to start, stop, or observe it.
type Lifecycle struct {
	segCfg           pipeline.SegmenterConfig
	deviceMaxRetries int

	vad       inference.VadModel
	newSource SourceFactory
	onSegment pipeline.SegmentHandler

	mu     sync.Mutex // serializes start/stop/switch
	handle *sessionHandle

	status   *syncx.RWGuard[Status]
	statusCh chan Status
}

type sessionHandle struct {
	userID    string
	cancel    context.CancelFunc
	done      chan struct{}
	segmenter *pipeline.Segmenter
}

// New creates an idle lifecycle.
func New(segCfg pipeline.SegmenterConfig, deviceMaxRetries int, vad inference.VadModel, newSource SourceFactory, onSegment pipeline.SegmentHandler) *Lifecycle {
	return &Lifecycle{
		segCfg:           segCfg,
		deviceMaxRetries: deviceMaxRetries,
		vad:              vad,
		newSource:        newSource,
		onSegment:        onSegment,
		status:           syncx.NewGuard(Status{State: StateIdle}),
		statusCh:         make(chan Status, 16),
	}
}

// Start begins listening for userID. Calling it again for the same user
// is a no-op returning success. If a different user's listener is
// active it is stopped, its shutdown observed, and the new session
// started; at most one listener exists system-wide.
func (l *Lifecycle) Start(userID string) error {
	if userID == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "user id required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h := l.liveHandleLocked(); h != nil {
		if h.userID == userID {
			slog.Info("already listening", "user_id", userID)
			return nil
		}
		slog.Info("switching listener", "from", h.userID, "to", userID)
		l.stopLocked(h)
	}

	src := l.newSource()
	if err := src.Open(); err != nil {
		l.setStatus(Status{State: StateUnavailable})
		return apperrors.Wrap(err, apperrors.CodeDeviceUnavailable, "could not open audio device")
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &sessionHandle{
		userID:    userID,
		cancel:    cancel,
		done:      make(chan struct{}),
		segmenter: pipeline.NewSegmenter(userID, l.segCfg, l.onSegment),
	}
	l.handle = h
	l.setStatus(Status{State: StateListening, UserID: userID})

	go l.run(ctx, h, src)
	slog.Info("listener started", "user_id", userID)
	return nil
}

// Stop signals the capture loop cooperatively and waits for it to
// release the device.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.liveHandleLocked()
	if h == nil {
		l.handle = nil
		l.setStatus(Status{State: StateIdle})
		return
	}
	l.stopLocked(h)
}

// Status reports the current listener status.
func (l *Lifecycle) Status() Status {
	return l.status.Get()
}

// StatusEvents returns the channel of status transitions.
func (l *Lifecycle) StatusEvents() <-chan Status {
	return l.statusCh
}

// SetVADThreshold adjusts the speech threshold for the active session
// and for sessions started later.
func (l *Lifecycle) SetVADThreshold(t float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.segCfg.VADThreshold = t
	if h := l.liveHandleLocked(); h != nil {
		h.segmenter.SetVADThreshold(t)
	}
}

// liveHandleLocked returns the handle if its session is still running.
// A session that died on its own (device unavailable) is cleaned up.
func (l *Lifecycle) liveHandleLocked() *sessionHandle {
	if l.handle == nil {
		return nil
	}
	select {
	case <-l.handle.done:
		l.handle = nil
		return nil
	default:
		return l.handle
	}
}

func (l *Lifecycle) stopLocked(h *sessionHandle) {
	h.cancel()
	<-h.done
	l.handle = nil
	l.setStatus(Status{State: StateIdle})
	slog.Info("listener stopped", "user_id", h.userID)
}

func (l *Lifecycle) setStatus(s Status) {
	l.status.Set(s)
	select {
	case l.statusCh <- s:
	default:
	}
}

// run is the capture loop. It must keep pace with the frame duration;
// the only suspension points are the device read and VAD inference.
func (l *Lifecycle) run(ctx context.Context, h *sessionHandle, src audio.Source) {
	defer close(h.done)
	defer func() { _ = src.Close() }()

	log := slog.With("user_id", h.userID)

	for {
		select {
		case <-ctx.Done():
			h.segmenter.Abandon()
			return
		default:
		}

		frame, err := src.Read()
		if err != nil {
			h.segmenter.Abandon()
			log.Warn("frame read failed, reopening device", "error", err)
			_ = src.Close()

			rerr := resilience.Retry(ctx, resilience.DeviceRetryConfig(l.deviceMaxRetries), src.Open)
			if rerr != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("device reopen exhausted, listener unavailable", "error", rerr)
				l.setStatus(Status{State: StateUnavailable})
				return
			}
			continue
		}

		confidence, err := l.vad.Infer(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				h.segmenter.Abandon()
				return
			}
			// A VAD outage stalls the loop briefly; no corrupt segments
			// are emitted and the loop never dies.
			log.Debug("vad inference failed, stalling", "error", err)
			select {
			case <-ctx.Done():
				h.segmenter.Abandon()
				return
			case <-time.After(vadStallDelay):
			}
			continue
		}

		h.segmenter.Process(frame, confidence)
	}
}
