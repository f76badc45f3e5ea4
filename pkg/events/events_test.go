package events

import (
	"testing"
	"time"
)

func newRunningBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func waitForEvent(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := newRunningBroker(t)
	sub := b.Subscribe()

	b.Publish(&Event{Type: EventSheetEdited, Sheet: "holdings", Version: 6})

	ev := waitForEvent(t, sub)
	if ev.Type != EventSheetEdited {
		t.Errorf("expected %s, got %s", EventSheetEdited, ev.Type)
	}
	if ev.Sheet != "holdings" || ev.Version != 6 {
		t.Errorf("unexpected event payload: %+v", ev)
	}
	if ev.ID == "" {
		t.Error("expected an assigned event id")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected an assigned timestamp")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := newRunningBroker(t)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	if b.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.SubscriberCount())
	}

	b.Publish(&Event{Type: EventSyncApplied, ViewID: "view-a"})

	for _, sub := range []Subscriber{sub1, sub2} {
		ev := waitForEvent(t, sub)
		if ev.ViewID != "view-a" {
			t.Errorf("unexpected view id %q", ev.ViewID)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := newRunningBroker(t)
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}

	// Channel is closed; a second unsubscribe must not panic.
	if _, ok := <-sub; ok {
		t.Error("expected closed channel")
	}
	b.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := newRunningBroker(t)
	slow := b.Subscribe()
	_ = slow // never drained

	fast := b.Subscribe()

	// More events than the per-subscriber buffer holds.
	for i := 0; i < 60; i++ {
		b.Publish(&Event{Type: EventSheetEdited, Version: uint64(i)})
	}

	// The fast subscriber still receives events.
	waitForEvent(t, fast)
}

func TestPublishAfterStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()

	// Must not block or panic.
	b.Publish(&Event{Type: EventSheetEdited})
}
