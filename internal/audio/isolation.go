package audio

import "math"

const (
	isolationCutoffHz = 100.0
	// gate opens above this block RMS and closes after gateHoldBlocks quiet blocks
	gateOpenRMS    = 0.01
	gateHoldBlocks = 8
	gateFloorGain  = 0.1
)

// isolationFilter is a per-channel one-pole high-pass followed by a block noise gate.
// It works in place and never allocates after the first block.
type isolationFilter struct {
	prevIn  []float64
	prevOut []float64
	quiet   int
}

func newIsolationFilter() *isolationFilter {
	return &isolationFilter{
		prevIn:  make([]float64, maxCaptureChannels),
		prevOut: make([]float64, maxCaptureChannels),
	}
}

func (f *isolationFilter) reset() {
	for i := range f.prevIn {
		f.prevIn[i] = 0
		f.prevOut[i] = 0
	}
	f.quiet = 0
}

func (f *isolationFilter) apply(in []float32, channels int, rate float64) {
	if channels < 1 || rate <= 0 {
		return
	}
	if len(f.prevIn) < channels {
		f.prevIn = make([]float64, channels)
		f.prevOut = make([]float64, channels)
	}

	rc := 1.0 / (2 * math.Pi * isolationCutoffHz)
	alpha := rc / (rc + 1.0/rate)

	var energy float64
	for i, s := range in {
		c := i % channels
		x := float64(s)
		y := alpha * (f.prevOut[c] + x - f.prevIn[c])
		f.prevIn[c] = x
		f.prevOut[c] = y
		in[i] = float32(y)
		energy += y * y
	}

	if len(in) == 0 {
		return
	}
	if math.Sqrt(energy/float64(len(in))) >= gateOpenRMS {
		f.quiet = 0
		return
	}
	f.quiet++
	if f.quiet <= gateHoldBlocks {
		return
	}
	for i := range in {
		in[i] *= gateFloorGain
	}
}
