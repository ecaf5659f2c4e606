package events

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/mezonai/custody/types"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	// Test subscription to all events
	id, eventChan := eventBus.Subscribe()

	// Verify subscription count
	if count := eventBus.GetTotalSubscriptions(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}

	program := types.ProgramID("ledger")
	event := NewEvent(TopicTransfer, program, 100, "from", "a", "to", "b")

	go func() {
		eventBus.Publish(context.Background(), event)
	}()

	select {
	case received := <-eventChan:
		if received.Topic != TopicTransfer {
			t.Errorf("Expected %s, got %s", TopicTransfer, received.Topic)
		}
		if received.Field("to") != "b" || received.Amount != 100 {
			t.Errorf("Unexpected payload %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Test unsubscribe
	if !eventBus.Unsubscribe(id) {
		t.Error("Expected unsubscribe to succeed")
	}
	if eventBus.Unsubscribe(id) {
		t.Error("Expected second unsubscribe to fail")
	}

	// Verify subscription count is 0
	if count := eventBus.GetTotalSubscriptions(); count != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", count)
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	eventBus := NewEventBus()
	_, ch := eventBus.Subscribe()

	for i := 0; i < subscriberBufferSize+5; i++ {
		eventBus.Publish(context.Background(), NewEvent(TopicMint, types.ZeroIdentity, uint64(i)))
	}

	if len(ch) != subscriberBufferSize {
		t.Errorf("Expected %d buffered events, got %d", subscriberBufferSize, len(ch))
	}
}

func TestReactorsRunInOrderAndMayRepublish(t *testing.T) {
	eventBus := NewEventBus()
	var seen []string

	eventBus.AddReactor(func(ctx context.Context, e Event) {
		seen = append(seen, "first:"+string(e.Topic))
		if e.Topic == TopicTransfer {
			eventBus.Publish(ctx, NewEvent(TopicApprove, e.Program, 0))
		}
	})
	second := eventBus.AddReactor(func(ctx context.Context, e Event) {
		seen = append(seen, "second:"+string(e.Topic))
	})

	eventBus.Publish(context.Background(), NewEvent(TopicTransfer, types.ZeroIdentity, 1))

	want := []string{"first:xfer", "first:approve", "second:approve", "second:xfer"}
	if len(seen) != len(want) {
		t.Fatalf("Expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, seen)
			break
		}
	}

	if !eventBus.HasSubscriber(second) {
		t.Error("Expected reactor to be registered")
	}
	eventBus.Unsubscribe(second)
	if eventBus.HasSubscriber(second) {
		t.Error("Expected reactor to be removed")
	}
}

func TestEventRouter(t *testing.T) {
	eventBus := NewEventBus()
	router := NewEventRouter(eventBus)

	ledgerA := types.Identity(sha256.Sum256([]byte("a")))
	ledgerB := types.Identity(sha256.Sum256([]byte("b")))

	var all, onlyA int
	router.On(TopicTransfer, func(context.Context, Event) { all++ })
	router.OnProgram(TopicTransfer, ledgerA, func(context.Context, Event) { onlyA++ })

	eventBus.Publish(context.Background(), NewEvent(TopicTransfer, ledgerA, 1))
	eventBus.Publish(context.Background(), NewEvent(TopicTransfer, ledgerB, 1))
	eventBus.Publish(context.Background(), NewEvent(TopicMint, ledgerA, 1))

	if all != 2 {
		t.Errorf("Expected 2 transfer dispatches, got %d", all)
	}
	if onlyA != 1 {
		t.Errorf("Expected 1 dispatch for ledger A, got %d", onlyA)
	}
}
