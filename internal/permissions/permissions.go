// Package permissions reports and requests microphone authorization.
package permissions

import (
	"context"
	"time"
)

// Status mirrors the platform authorization states
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "not determined"
	}
}

// Provider checks the microphone permission and prompts for it
type Provider interface {
	Status() Status
	// Request shows the system prompt if needed and waits for an answer or ctx
	Request(ctx context.Context) (Status, error)
}

// Static is a Provider with a fixed answer
type Static Status

func (s Static) Status() Status { return Status(s) }

func (s Static) Request(ctx context.Context) (Status, error) {
	return Status(s), nil
}

// waitDecided polls check until the user answers the prompt
func waitDecided(ctx context.Context, check func() Status, interval time.Duration) (Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if st := check(); st != NotDetermined {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return NotDetermined, ctx.Err()
		case <-ticker.C:
		}
	}
}
