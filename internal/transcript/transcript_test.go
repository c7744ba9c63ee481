package transcript

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestReaderDecodesLinesAndSkipsGarbage(t *testing.T) {
	input := strings.Join([]string{
		`{"text":"so um","final":false}`,
		`not json`,
		``,
		`{"text":"so um I think","final":true}`,
	}, "\n")

	rd := NewReader(context.Background(), strings.NewReader(input), zerolog.Nop())

	var got []Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-rd.Updates():
			if !ok {
				if len(got) != 2 {
					t.Fatalf("expected 2 updates, got %d", len(got))
				}
				if got[0].Text != "so um" || got[0].Final {
					t.Errorf("unexpected first update %+v", got[0])
				}
				if got[1].Text != "so um I think" || !got[1].Final {
					t.Errorf("unexpected second update %+v", got[1])
				}
				if got[1].At.IsZero() {
					t.Error("expected receive time to be stamped")
				}
				return
			}
			got = append(got, u)
		case <-timeout:
			t.Fatal("timed out waiting for reader to finish")
		}
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hello", 1},
		{"you know, I was  like", 5},
	}
	for _, tt := range tests {
		if got := WordCount(tt.text); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
