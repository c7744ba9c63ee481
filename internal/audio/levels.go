package audio

import "math"

const (
	int16Scale = 1.0 / 32768.0
	int32Scale = 1.0 / 2147483648.0

	// SilenceFloorDB is reported for digital silence
	SilenceFloorDB = -160.0
)

// RMS returns the root-mean-square amplitude of all samples in the frame,
// normalized to full scale [0, 1]. Layout does not matter for the whole-frame value.
func RMS(f Frame) float64 {
	n := f.Len()
	if n == 0 {
		return 0
	}
	var sum float64
	switch f.Format.Kind {
	case Int16:
		for _, s := range f.I16 {
			v := float64(s) * int16Scale
			sum += v * v
		}
	case Int32:
		for _, s := range f.I32 {
			v := float64(s) * int32Scale
			sum += v * v
		}
	default:
		for _, s := range f.F32 {
			v := float64(s)
			sum += v * v
		}
	}
	return math.Sqrt(sum / float64(n))
}

// LevelDB converts a normalized RMS value to dBFS
func LevelDB(rms float64) float64 {
	if rms <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(rms)
	return math.Max(db, SilenceFloorDB)
}

// Downmix averages all channels into dst as normalized mono float samples.
// dst is reused when it has enough capacity.
func Downmix(dst []float32, f Frame) []float32 {
	if cap(dst) < f.Frames {
		dst = make([]float32, f.Frames)
	}
	dst = dst[:f.Frames]
	chans := f.Format.Channels
	if chans < 1 {
		return dst[:0]
	}
	inv := 1.0 / float64(chans)
	for i := 0; i < f.Frames; i++ {
		var acc float64
		for c := 0; c < chans; c++ {
			acc += sampleAt(f, sampleIndex(f.Format.Planar, c, i, chans, f.Frames))
		}
		dst[i] = float32(acc * inv)
	}
	return dst
}

func sampleIndex(planar bool, channel, frame, channels, frames int) int {
	if planar {
		return channel*frames + frame
	}
	return frame*channels + channel
}

func sampleAt(f Frame, idx int) float64 {
	switch f.Format.Kind {
	case Int16:
		return float64(f.I16[idx]) * int16Scale
	case Int32:
		return float64(f.I32[idx]) * int32Scale
	default:
		return float64(f.F32[idx])
	}
}

// ToPCM16 converts a normalized float sample to a clamped 16-bit value
func ToPCM16(v float32) int {
	s := int(math.Round(float64(v) * 32767))
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return s
}
