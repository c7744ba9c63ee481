package permissions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStaticProvider(t *testing.T) {
	p := Static(Denied)
	if p.Status() != Denied {
		t.Errorf("expected denied, got %s", p.Status())
	}
	st, err := p.Request(context.Background())
	if err != nil || st != Denied {
		t.Errorf("expected denied without error, got %s, %v", st, err)
	}
}

func TestWaitDecidedReturnsAnswer(t *testing.T) {
	calls := 0
	check := func() Status {
		calls++
		if calls < 3 {
			return NotDetermined
		}
		return Authorized
	}

	st, err := waitDecided(context.Background(), check, time.Millisecond)
	if err != nil || st != Authorized {
		t.Errorf("expected authorized, got %s, %v", st, err)
	}
}

func TestWaitDecidedHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	st, err := waitDecided(ctx, func() Status { return NotDetermined }, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if st != NotDetermined {
		t.Errorf("expected not determined, got %s", st)
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		NotDetermined: "not determined",
		Restricted:    "restricted",
		Denied:        "denied",
		Authorized:    "authorized",
	}
	for st, want := range tests {
		if st.String() != want {
			t.Errorf("expected %q, got %q", want, st.String())
		}
	}
}
