package analysis

import (
	"testing"
	"time"
)

func TestPaceWordsPerMinute(t *testing.T) {
	p := NewPaceAnalyzer()
	t0 := time.Unix(1700000000, 0)
	p.Start(t0)

	if got := p.UpdateWordCount(300, t0.Add(2*time.Minute)); got != 150 {
		t.Errorf("expected 150 wpm, got %f", got)
	}
	if p.WordCount() != 300 {
		t.Errorf("expected 300 words, got %d", p.WordCount())
	}
}

func TestPaceEdgeCases(t *testing.T) {
	p := NewPaceAnalyzer()
	t0 := time.Unix(1700000000, 0)

	if got := p.UpdateWordCount(10, t0); got != 0 {
		t.Errorf("expected 0 before start, got %f", got)
	}

	p.Start(t0)
	if got := p.UpdateWordCount(10, t0); got != 0 {
		t.Errorf("expected 0 with no elapsed time, got %f", got)
	}
	if got := p.UpdateWordCount(-5, t0.Add(time.Minute)); got != 0 {
		t.Errorf("expected negative counts clamped to 0, got %f", got)
	}

	p.Reset()
	if p.WordsPerMinute(t0.Add(time.Hour)) != 0 {
		t.Error("expected 0 after reset")
	}
}
