// Package storage estimates how long the recordings volume can keep up with
// the current write rate.
package storage

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

// DefaultBytesPerSecond assumes 16-bit mono at 48 kHz when nothing better is known
const DefaultBytesPerSecond = 2 * 48000

// Level classifies remaining headroom
type Level int

const (
	LevelUnknown Level = iota
	LevelOK
	LevelWarning
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Status is the outcome of one capacity check
type Status struct {
	Level            Level
	AvailableBytes   uint64
	BytesPerSecond   float64
	RemainingSeconds float64
}

func (s Status) String() string {
	if s.Level == LevelWarning {
		return fmt.Sprintf("warning(remainingSeconds: %.0f)", s.RemainingSeconds)
	}
	return s.Level.String()
}

// Sample is a (time, file size) observation of the segment being written
type Sample struct {
	At   time.Time
	Size int64
}

// UsageFunc returns free bytes on the volume holding path
type UsageFunc func(path string) (uint64, error)

// DiskFree reports free space using gopsutil
func DiskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}

// Monitor keeps the two most recent size samples. It is safe for concurrent use.
type Monitor struct {
	warningThreshold time.Duration
	usage            UsageFunc

	mu         sync.Mutex
	prev, last Sample
	samples    int
	formatRate float64
}

// NewMonitor creates a monitor that warns when less than threshold of recording time remains
func NewMonitor(threshold time.Duration, usage UsageFunc) *Monitor {
	if usage == nil {
		usage = DiskFree
	}
	return &Monitor{warningThreshold: threshold, usage: usage}
}

// SetFormatRate sets the byte rate derived from the input format, 0 clears it
func (m *Monitor) SetFormatRate(bytesPerSecond float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formatRate = bytesPerSecond
}

// Record adds a size sample
func (m *Monitor) Record(at time.Time, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev = m.last
	m.last = Sample{At: at, Size: size}
	if m.samples < 2 {
		m.samples++
	}
}

// Reset drops size samples so rate estimation never straddles a segment rotation
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev = Sample{}
	m.last = Sample{}
	m.samples = 0
}

// BytesPerSecond estimates the current write rate
func (m *Monitor) BytesPerSecond() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytesPerSecondLocked()
}

func (m *Monitor) bytesPerSecondLocked() float64 {
	if m.samples == 2 {
		dt := m.last.At.Sub(m.prev.At).Seconds()
		dBytes := float64(m.last.Size - m.prev.Size)
		if dt > 0 && dBytes > 0 {
			return dBytes / dt
		}
	}
	if m.formatRate > 0 {
		return m.formatRate
	}
	return DefaultBytesPerSecond
}

// Evaluate classifies the given free space against the estimated rate
func (m *Monitor) Evaluate(available uint64) Status {
	rate := m.BytesPerSecond()
	remaining := math.Inf(1)
	if rate > 0 {
		remaining = float64(available) / rate
	}
	st := Status{
		Level:            LevelOK,
		AvailableBytes:   available,
		BytesPerSecond:   rate,
		RemainingSeconds: remaining,
	}
	if remaining <= m.warningThreshold.Seconds() {
		st.Level = LevelWarning
	}
	return st
}

// Check queries free space of dir and evaluates it. The query runs without the lock held.
func (m *Monitor) Check(dir string) (Status, error) {
	free, err := m.usage(dir)
	if err != nil {
		return Status{Level: LevelUnknown}, err
	}
	return m.Evaluate(free), nil
}
