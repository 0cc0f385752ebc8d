package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageCreated, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageCreated {
			t.Errorf("got kind %q, want message.created", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageCreated})
	b.Publish(Event{Kind: KindConversationCreated})

	select {
	case evt := <-ch:
		if evt.Kind != KindConversationCreated {
			t.Errorf("got kind %q, want conversation.created", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the message event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestEmptyPrefixMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Publish(Event{Kind: KindRosterChanged})
	b.Publish(Event{Kind: KindMessageRead})

	for _, want := range []string{KindRosterChanged, KindMessageRead} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got kind %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageCreated})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: KindMessageCreated})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: KindMessageRead})

	evt := <-ch
	if evt.Kind != KindMessageCreated {
		t.Errorf("got %q, want message.created", evt.Kind)
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New()
	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", n)
	}

	_, unsubA := b.Subscribe("message.", 10)
	_, unsubB := b.Subscribe("", 10)
	if n := b.SubscriberCount(); n != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", n)
	}

	unsubA()
	unsubB()
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() = %d after unsubscribing, want 0", n)
	}
}

func TestNewEventStampsTimestamp(t *testing.T) {
	evt := NewEvent(KindRosterChanged, nil)
	if evt.Timestamp.IsZero() {
		t.Error("NewEvent() should stamp a timestamp")
	}
}
