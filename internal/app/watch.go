package app

import (
	"context"
	"time"

	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/capture"
)

// sleepGap is how far past its schedule a tick must arrive to count as a system sleep
const sleepGap = 10 * time.Second

// Watch polls input devices and the wall clock until ctx is done and hands
// the changes it sees to the recorder as interruptions.
func (a *App) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	w := &watcher{interval: interval}
	devices, err := a.ListDevices()
	w.observe(time.Now(), devices, err)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			devices, err := a.ListDevices()
			if err != nil {
				a.log.Debug().Err(err).Msg("Failed to poll audio devices")
			}
			for _, kind := range w.observe(now, devices, err) {
				a.log.Info().Str("kind", kind.String()).Msg("System event")
				a.rec.HandleInterruption(kind)
			}
		}
	}
}

// watcher diffs successive device lists and tick times
type watcher struct {
	interval time.Duration

	last     time.Time
	known    map[string]bool
	fallback string
}

// observe records one poll and returns the interruptions it implies. A
// failed device listing leaves the known set untouched.
func (w *watcher) observe(now time.Time, devices []audio.Device, listErr error) []capture.Interruption {
	var out []capture.Interruption

	// Round(0) drops the monotonic reading, which stops while the machine sleeps
	now = now.Round(0)
	if !w.last.IsZero() && now.Sub(w.last) >= w.interval+sleepGap {
		out = append(out, capture.SystemSleep)
	}
	w.last = now

	if listErr != nil {
		return out
	}

	current := make(map[string]bool, len(devices))
	fallback := ""
	for _, d := range devices {
		current[d.ID] = true
		if d.Default {
			fallback = d.ID
		}
	}
	if w.known != nil {
		added, removed := false, false
		for id := range current {
			if !w.known[id] {
				added = true
			}
		}
		for id := range w.known {
			if !current[id] {
				removed = true
			}
		}
		if added {
			out = append(out, capture.DeviceConnected)
		}
		if removed {
			out = append(out, capture.DeviceDisconnected)
		}
		if fallback != w.fallback {
			out = append(out, capture.RouteChanged)
		}
	}
	w.known = current
	w.fallback = fallback
	return out
}
