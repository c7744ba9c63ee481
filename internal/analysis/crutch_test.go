package analysis

import (
	"reflect"
	"testing"
)

func TestCrutchWordDetectorCount(t *testing.T) {
	d := NewCrutchWordDetector([]string{"um", "like", "you know"})

	got := d.Count("you know, I was like, um, thinking")
	want := map[string]int{"you know": 1, "like": 1, "um": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCrutchWordDetectorPhraseFirst(t *testing.T) {
	d := NewCrutchWordDetector([]string{"you", "you know"})

	got := d.Count("You know... you")
	want := map[string]int{"you know": 1, "you": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNormalizeCrutchWords(t *testing.T) {
	got := NormalizeCrutchWords([]string{"Um", " um ", "You   Know", "", "like"})
	want := []string{"um", "you know", "like"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Well, UM... it's 3pm")
	want := []string{"well", "um", "it", "s", "3pm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCrutchTallyCumulativeUpdates(t *testing.T) {
	tally := NewCrutchTally(NewCrutchWordDetector([]string{"um", "like", "you know"}))

	tally.Update("um so", false)
	tally.Update("um so like", false)
	tally.Update("um so like you know", true)
	if got := tally.Total(); got != 3 {
		t.Fatalf("expected 3 after first utterance, got %d", got)
	}

	tally.Update("um", false)
	tally.Update("um um", false)
	want := map[string]int{"um": 3, "like": 1, "you know": 1}
	if got := tally.Counts(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	tally.Reset()
	if tally.Total() != 0 {
		t.Error("expected reset to clear counts")
	}
}

func TestCrutchTallyRepeatedFinal(t *testing.T) {
	tally := NewCrutchTally(NewCrutchWordDetector([]string{"um", "like"}))

	tally.Update("um I like this", true)
	tally.Update("um I like this", true)
	if got := tally.Total(); got != 2 {
		t.Fatalf("expected a repeated final to count once, got %d", got)
	}

	tally.Update("um I like this um", true)
	want := map[string]int{"um": 2, "like": 1}
	if got := tally.Counts(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v after an extended final, got %v", want, got)
	}
}
