package analysis

import (
	"time"

	"github.com/petems/pacekeeper/internal/audio"
)

// PauseDetector segments speech from silence by RMS and counts pauses.
// A pause starts at the last speech sample and is counted once, when the
// silence since then first reaches the pause threshold.
type PauseDetector struct {
	speechThreshold float64
	pauseThreshold  time.Duration

	heardSpeech bool
	lastSpeech  time.Time
	inPause     bool
	pauseStart  time.Time
	pauseCount  int
	closedTotal time.Duration
}

func NewPauseDetector(speechThreshold float64, pauseThreshold time.Duration) *PauseDetector {
	if pauseThreshold < 0 {
		pauseThreshold = 0
	}
	return &PauseDetector{speechThreshold: speechThreshold, pauseThreshold: pauseThreshold}
}

// Detect classifies the frame and reports whether a new pause began with it
func (p *PauseDetector) Detect(f audio.Frame) bool {
	return p.DetectLevel(audio.RMS(f), f.Time)
}

// DetectLevel is Detect for a precomputed RMS value
func (p *PauseDetector) DetectLevel(rms float64, at time.Time) bool {
	if rms >= p.speechThreshold {
		if p.inPause {
			p.closedTotal += at.Sub(p.pauseStart)
			p.inPause = false
		}
		p.heardSpeech = true
		p.lastSpeech = at
		return false
	}

	if !p.heardSpeech || p.inPause {
		return false
	}
	if at.Sub(p.lastSpeech) >= p.pauseThreshold {
		p.pauseCount++
		p.inPause = true
		p.pauseStart = p.lastSpeech
		return true
	}
	return false
}

func (p *PauseDetector) PauseCount() int { return p.pauseCount }

func (p *PauseDetector) InPause() bool { return p.inPause }

// TotalPauseDuration includes the open pause up to at
func (p *PauseDetector) TotalPauseDuration(at time.Time) time.Duration {
	total := p.closedTotal
	if p.inPause && at.After(p.pauseStart) {
		total += at.Sub(p.pauseStart)
	}
	return total
}

// AveragePauseDuration is 0 until the first pause is counted
func (p *PauseDetector) AveragePauseDuration(at time.Time) time.Duration {
	if p.pauseCount == 0 {
		return 0
	}
	return p.TotalPauseDuration(at) / time.Duration(p.pauseCount)
}

func (p *PauseDetector) Reset() {
	p.heardSpeech = false
	p.lastSpeech = time.Time{}
	p.inPause = false
	p.pauseStart = time.Time{}
	p.pauseCount = 0
	p.closedTotal = 0
}
