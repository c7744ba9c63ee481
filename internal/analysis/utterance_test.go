package analysis

import "testing"

func TestUtterancesAdvance(t *testing.T) {
	steps := []struct {
		text    string
		final   bool
		restart bool
	}{
		{"um so", false, false},
		{"um so like", true, false},
		{"um so like", true, false},
		{"um so like and then", false, false},
		{"next one", false, true},
		{"next", false, false},
		{"next thing", true, false},
		{"", false, true},
		{"", true, false},
		{"fresh start", false, false},
	}

	var u Utterances
	for i, s := range steps {
		if got := u.Advance(Tokenize(s.text), s.final); got != s.restart {
			t.Errorf("step %d (%q): expected restart=%v, got %v", i, s.text, s.restart, got)
		}
	}
}
