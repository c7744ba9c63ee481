package app

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/petems/pacekeeper/internal/audio"
	"github.com/petems/pacekeeper/internal/capture"
)

func TestWatcherObserve(t *testing.T) {
	builtin := audio.Device{ID: "builtin", Name: "Built-in", Default: true}
	usb := audio.Device{ID: "usb", Name: "USB Mic"}
	t0 := time.Unix(1700000000, 0)
	interval := 2 * time.Second

	steps := []struct {
		name    string
		at      time.Duration
		devices []audio.Device
		err     error
		want    []capture.Interruption
	}{
		{"first poll only primes", 0, []audio.Device{builtin}, nil, nil},
		{"nothing changed", 2 * time.Second, []audio.Device{builtin}, nil, nil},
		{"device plugged in", 4 * time.Second, []audio.Device{builtin, usb}, nil,
			[]capture.Interruption{capture.DeviceConnected}},
		{"listing failed", 6 * time.Second, nil, errors.New("busy"), nil},
		{"new default", 8 * time.Second, []audio.Device{{ID: "builtin"}, {ID: "usb", Default: true}}, nil,
			[]capture.Interruption{capture.RouteChanged}},
		{"device unplugged", 10 * time.Second, []audio.Device{builtin}, nil,
			[]capture.Interruption{capture.DeviceDisconnected, capture.RouteChanged}},
		{"tick late after sleep", 2 * time.Minute, []audio.Device{builtin}, nil,
			[]capture.Interruption{capture.SystemSleep}},
		{"slightly late tick", 2*time.Minute + 5*time.Second, []audio.Device{builtin}, nil, nil},
	}

	w := &watcher{interval: interval}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			got := w.observe(t0.Add(s.at), s.devices, s.err)
			if !reflect.DeepEqual(got, s.want) {
				t.Errorf("expected %v, got %v", s.want, got)
			}
		})
	}
}

// switchingDevices is a device lister whose answer changes between polls
type switchingDevices struct {
	mu      sync.Mutex
	devices []audio.Device
	polls   int
}

func (s *switchingDevices) set(devices []audio.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

func (s *switchingDevices) ListDevices() ([]audio.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	return s.devices, nil
}

func (s *switchingDevices) polled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchForwardsInterruptions(t *testing.T) {
	devices := &switchingDevices{}
	devices.set([]audio.Device{{ID: "builtin", Default: true}})
	app, rec := newTestApp(t, func(c *Config) { c.Devices = devices })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Watch(ctx, 5*time.Millisecond) }()

	waitUntil(t, "first poll", func() bool { return devices.polled() > 0 })
	devices.set([]audio.Device{{ID: "builtin", Default: true}, {ID: "usb"}})
	waitUntil(t, "device event", func() bool { return len(rec.interruptions()) > 0 })
	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected clean exit, got %v", err)
	}

	if got := rec.interruptions()[0]; got != capture.DeviceConnected {
		t.Errorf("expected %s, got %s", capture.DeviceConnected, got)
	}
}
