package events

import "testing"

func TestSubscribeReceivesCurrentValue(t *testing.T) {
	b := NewBroadcaster[int]()
	b.Publish(7)

	ch, cancel := b.Subscribe()
	defer cancel()

	if got := <-ch; got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestSlowSubscriberSeesLatestOnly(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, cancel := b.Subscribe()
	defer cancel()
	<-ch

	b.Publish("a")
	b.Publish("b")
	b.Publish("c")

	if got := <-ch; got != "c" {
		t.Fatalf("expected latest value c, got %q", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("expected no further values, got %q", v)
	default:
	}
	if b.Latest() != "c" {
		t.Fatalf("expected Latest to be c, got %q", b.Latest())
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, cancel := b.Subscribe()
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
	b.Publish(1)
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := NewBroadcaster[int]()
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelA()
	defer cancelC()
	<-a
	<-c

	b.Close()
	if _, ok := <-a; ok {
		t.Fatal("expected first subscriber closed")
	}
	if _, ok := <-c; ok {
		t.Fatal("expected second subscriber closed")
	}

	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected subscription after Close to be closed")
	}
}
