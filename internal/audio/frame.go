package audio

import (
	"fmt"
	"time"
)

// SampleKind is the numeric representation of samples in a frame
type SampleKind int

const (
	Float32 SampleKind = iota
	Int16
	Int32
)

func (k SampleKind) String() string {
	switch k {
	case Float32:
		return "float32"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("SampleKind(%d)", int(k))
	}
}

// BytesPerSample returns the storage width of one sample
func (k SampleKind) BytesPerSample() int {
	if k == Int16 {
		return 2
	}
	return 4
}

// Format describes the layout of a frame
type Format struct {
	SampleRate float64
	Channels   int
	Kind       SampleKind
	// Planar frames store each channel contiguously; otherwise samples are interleaved
	Planar bool
}

// BytesPerSecond is the raw data rate of the format
func (f Format) BytesPerSecond() float64 {
	return float64(f.Kind.BytesPerSample()*f.Channels) * f.SampleRate
}

func (f Format) String() string {
	layout := "interleaved"
	if f.Planar {
		layout = "planar"
	}
	return fmt.Sprintf("%.0fHz/%dch/%s/%s", f.SampleRate, f.Channels, f.Kind, layout)
}

// Frame is one block of captured samples. Exactly one of the sample slices
// is populated, matching Format.Kind.
type Frame struct {
	Format Format
	Frames int
	F32    []float32
	I16    []int16
	I32    []int32
	// Time is the host time at which the block was captured
	Time time.Time
}

// Duration returns how much audio the frame holds
func (f Frame) Duration() time.Duration {
	return FrameDuration(f.Frames, f.Format.SampleRate)
}

// Len returns the number of samples across all channels
func (f Frame) Len() int {
	switch f.Format.Kind {
	case Int16:
		return len(f.I16)
	case Int32:
		return len(f.I32)
	default:
		return len(f.F32)
	}
}

// Clone copies the sample data so the frame can outlive the tap callback
func (f Frame) Clone() Frame {
	out := f
	if f.F32 != nil {
		out.F32 = append([]float32(nil), f.F32...)
	}
	if f.I16 != nil {
		out.I16 = append([]int16(nil), f.I16...)
	}
	if f.I32 != nil {
		out.I32 = append([]int32(nil), f.I32...)
	}
	return out
}

// Validate checks that the sample slice matches the declared format
func (f Frame) Validate() error {
	if f.Format.Channels < 1 {
		return fmt.Errorf("invalid channel count %d", f.Format.Channels)
	}
	if want := f.Frames * f.Format.Channels; f.Len() != want {
		return fmt.Errorf("frame holds %d samples, want %d (%d frames x %d channels)",
			f.Len(), want, f.Frames, f.Format.Channels)
	}
	return nil
}
