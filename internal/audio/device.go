package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/mindtrace/voiceid/internal/apperrors"
)

// Device captures frames from the default input device via portaudio.
type Device struct {
	sampleRate int
	frameSize  int

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	opened bool
}

var _ Source = (*Device)(nil)

// NewDevice creates an unopened capture device.
func NewDevice(sampleRate, frameSize int) *Device {
	return &Device{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		buf:        make([]int16, frameSize),
	}
}

// Open initializes portaudio and starts a mono input stream.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDeviceUnavailable, "portaudio init failed")
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return apperrors.Wrap(err, apperrors.CodeDeviceUnavailable, "no default input device")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(d.sampleRate),
		FramesPerBuffer: d.frameSize,
	}

	stream, err := portaudio.OpenStream(params, d.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.CodeDeviceUnavailable, "open stream on %q", dev.Name)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.CodeDeviceUnavailable, "start stream on %q", dev.Name)
	}

	slog.Info("audio device opened", "device", dev.Name, "sample_rate", d.sampleRate, "frame_size", d.frameSize)
	d.stream = stream
	d.opened = true
	return nil
}

// Read blocks until the next frame is available and returns a copy of it.
func (d *Device) Read() (Frame, error) {
	d.mu.Lock()
	stream := d.stream
	opened := d.opened
	d.mu.Unlock()

	if !opened {
		return Frame{}, apperrors.New(apperrors.CodeDeviceUnavailable, "device not open")
	}

	if err := stream.Read(); err != nil {
		return Frame{}, apperrors.Wrap(err, apperrors.CodeTransientIO, "device read failed")
	}

	return Frame{
		Samples:   append([]int16(nil), d.buf...),
		Timestamp: time.Now(),
	}, nil
}

// Close stops the stream and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.opened {
		return nil
	}
	d.opened = false

	var firstErr error
	if err := d.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := d.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.stream = nil
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return apperrors.Wrap(firstErr, apperrors.CodeTransientIO, "device close")
	}
	slog.Debug("audio device closed")
	return nil
}
