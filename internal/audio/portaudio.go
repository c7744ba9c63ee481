package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const maxCaptureChannels = 2

// PortAudio owns the PortAudio library lifetime and hands out backends
type PortAudio struct {
	cfg Config
}

// New initializes PortAudio for capture
func New(cfg Config) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultConfig().FramesPerBuffer
	}
	return &PortAudio{cfg: cfg}, nil
}

// Standard returns a plain capture backend
func (p *PortAudio) Standard() (Backend, error) {
	return newPortAudioBackend("standard", p.cfg, nil), nil
}

// Isolation returns a backend that filters low-frequency rumble and gates
// background noise before frames reach the tap.
func (p *PortAudio) Isolation() (Backend, error) {
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIsolationUnavailable, err)
	}
	if device.DefaultSampleRate < p.cfg.MinIsolationSampleRate {
		return nil, fmt.Errorf("%w: device rate %.0fHz below %.0fHz",
			ErrIsolationUnavailable, device.DefaultSampleRate, p.cfg.MinIsolationSampleRate)
	}
	return newPortAudioBackend("voice-isolation", p.cfg, newIsolationFilter()), nil
}

func (p *PortAudio) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

type portAudioBackend struct {
	name   string
	cfg    Config
	filter *isolationFilter

	mu     sync.Mutex
	device *portaudio.DeviceInfo
	stream *portaudio.Stream
	tap    TapFunc
	format Format
}

func newPortAudioBackend(name string, cfg Config, filter *isolationFilter) *portAudioBackend {
	return &portAudioBackend{name: name, cfg: cfg, filter: filter}
}

func (b *portAudioBackend) Name() string { return b.name }

func (b *portAudioBackend) SelectDevice(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return fmt.Errorf("%w: no default input: %v", ErrDeviceUnavailable, err)
		}
		b.device = device
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == id && d.MaxInputChannels > 0 {
			b.device = d
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, id)
}

func (b *portAudioBackend) InputFormat() (Format, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return Format{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		b.device = device
	}
	channels := b.device.MaxInputChannels
	if channels > maxCaptureChannels {
		channels = maxCaptureChannels
	}
	b.format = Format{
		SampleRate: b.device.DefaultSampleRate,
		Channels:   channels,
		Kind:       Float32,
	}
	return b.format, nil
}

func (b *portAudioBackend) InstallTap(fn TapFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tap != nil {
		return fmt.Errorf("tap already installed on %s backend", b.name)
	}
	b.tap = fn
	return nil
}

func (b *portAudioBackend) RemoveTap() {
	b.mu.Lock()
	b.tap = nil
	b.mu.Unlock()
}

func (b *portAudioBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil {
		return nil
	}
	if b.device == nil || b.format.Channels == 0 {
		return fmt.Errorf("%s backend: input format not negotiated", b.name)
	}

	params := portaudio.LowLatencyParameters(b.device, nil)
	params.Input.Channels = b.format.Channels
	params.Output.Channels = 0
	params.SampleRate = b.format.SampleRate
	params.FramesPerBuffer = b.cfg.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, b.process)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	b.stream = stream
	return nil
}

// process runs on the PortAudio callback thread
func (b *portAudioBackend) process(in []float32) {
	b.mu.Lock()
	tap := b.tap
	format := b.format
	b.mu.Unlock()

	if tap == nil || format.Channels == 0 {
		return
	}
	// the driver reuses in for the next callback
	frame := Frame{
		Format: format,
		Frames: len(in) / format.Channels,
		F32:    in,
		Time:   time.Now(),
	}.Clone()
	if b.filter != nil {
		b.filter.apply(frame.F32, format.Channels, format.SampleRate)
	}
	tap(frame)
}

func (b *portAudioBackend) Stop() error {
	b.mu.Lock()
	stream := b.stream
	b.stream = nil
	b.mu.Unlock()

	if stream == nil {
		return ErrNotStarted
	}
	// Stop waits for the in-flight callback, so it must run without b.mu held
	stopErr := stream.Stop()
	closeErr := stream.Close()
	if b.filter != nil {
		b.filter.reset()
	}
	if stopErr != nil {
		return fmt.Errorf("failed to stop audio stream: %w", stopErr)
	}
	return closeErr
}
