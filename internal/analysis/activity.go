package analysis

import "time"

// SpeakingActivityTracker accumulates speaking time and turns. Silence is
// credited as speaking time while the gap since the last speech stays within
// the pause threshold; past it, the turn ends.
type SpeakingActivityTracker struct {
	pauseThreshold time.Duration

	speaking time.Duration
	total    time.Duration
	silence  time.Duration
	inTurn   bool
	turns    int
}

func NewSpeakingActivityTracker(pauseThreshold time.Duration) *SpeakingActivityTracker {
	if pauseThreshold < 0 {
		pauseThreshold = 0
	}
	return &SpeakingActivityTracker{pauseThreshold: pauseThreshold}
}

// Observe accounts one buffer of duration d
func (s *SpeakingActivityTracker) Observe(isSpeech bool, d time.Duration) {
	if d <= 0 {
		return
	}
	s.total += d

	if isSpeech {
		if !s.inTurn {
			s.inTurn = true
			s.turns++
		}
		s.silence = 0
		s.speaking += d
		return
	}

	if !s.inTurn {
		return
	}
	before := s.silence
	s.silence += d
	if s.silence <= s.pauseThreshold {
		s.speaking += d
		return
	}
	if credit := s.pauseThreshold - before; credit > 0 {
		s.speaking += credit
	}
	s.inTurn = false
}

func (s *SpeakingActivityTracker) SpeakingTime() time.Duration { return s.speaking }

func (s *SpeakingActivityTracker) TotalTime() time.Duration { return s.total }

func (s *SpeakingActivityTracker) Turns() int { return s.turns }

// Ratio is speaking time over observed time
func (s *SpeakingActivityTracker) Ratio() float64 {
	if s.total <= 0 {
		return 0
	}
	return float64(s.speaking) / float64(s.total)
}

func (s *SpeakingActivityTracker) Reset() {
	s.speaking = 0
	s.total = 0
	s.silence = 0
	s.inTurn = false
	s.turns = 0
}
