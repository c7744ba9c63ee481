package audio

import (
	"errors"
	"time"
)

var (
	// ErrDeviceUnavailable is returned by SelectDevice when the requested device is gone
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrIsolationUnavailable is returned when voice isolation cannot be used on this system
	ErrIsolationUnavailable = errors.New("voice isolation unavailable")
	// ErrNotStarted is returned when stopping a backend that never started
	ErrNotStarted = errors.New("backend not started")
)

// TapFunc receives every captured frame. Backends copy driver buffers with
// Frame.Clone first, so the frame may be retained.
type TapFunc func(Frame)

// Backend is a capture engine. The controller depends only on this interface.
type Backend interface {
	// Name identifies the variant ("standard", "voice-isolation")
	Name() string
	InputFormat() (Format, error)
	InstallTap(fn TapFunc) error
	RemoveTap()
	Start() error
	Stop() error
	// SelectDevice switches the input device. An empty id selects the system default.
	SelectDevice(id string) error
}

// DeviceLister enumerates input devices
type DeviceLister interface {
	ListDevices() ([]Device, error)
}

// Device represents an audio input device
type Device struct {
	ID      string
	Name    string
	Default bool
}

// Config holds capture parameters shared by the backends
type Config struct {
	FramesPerBuffer int
	// MinIsolationSampleRate is the lowest device rate the isolation filter accepts
	MinIsolationSampleRate float64
}

// DefaultConfig returns capture parameters suited to speech
func DefaultConfig() Config {
	return Config{
		FramesPerBuffer:        1024,
		MinIsolationSampleRate: 16000,
	}
}

// FrameDuration returns the wall time covered by n frames at rate
func FrameDuration(n int, rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / rate * float64(time.Second))
}
