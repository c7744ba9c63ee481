package analysis

import "time"

// PaceAnalyzer converts a cumulative word count into words per minute
type PaceAnalyzer struct {
	started   bool
	startedAt time.Time
	words     int
}

func NewPaceAnalyzer() *PaceAnalyzer {
	return &PaceAnalyzer{}
}

// Start sets the reference time and zeroes the count
func (p *PaceAnalyzer) Start(at time.Time) {
	p.started = true
	p.startedAt = at
	p.words = 0
}

// UpdateWordCount sets the cumulative count and returns the pace at at
func (p *PaceAnalyzer) UpdateWordCount(words int, at time.Time) float64 {
	if words < 0 {
		words = 0
	}
	p.words = words
	return p.WordsPerMinute(at)
}

func (p *PaceAnalyzer) WordCount() int { return p.words }

// WordsPerMinute is 0 before Start or when no time has elapsed
func (p *PaceAnalyzer) WordsPerMinute(at time.Time) float64 {
	if !p.started {
		return 0
	}
	minutes := at.Sub(p.startedAt).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(p.words) / minutes
}

func (p *PaceAnalyzer) Reset() {
	p.started = false
	p.startedAt = time.Time{}
	p.words = 0
}
