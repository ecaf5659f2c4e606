package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/monitoring"
)

const subscriberBufferSize = 50

type SubscriberID string

type Subscriber struct {
	ID      SubscriberID
	Channel chan Event
}

type EventBus struct {
	subscribers map[SubscriberID]*Subscriber
	reactors    map[SubscriberID]Reactor
	order       []SubscriberID
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[SubscriberID]*Subscriber),
		reactors:    make(map[SubscriberID]Reactor),
	}
}

func (eb *EventBus) generateUUIDID() SubscriberID {
	id := uuid.Must(uuid.NewV7())
	return SubscriberID(id.String())
}

func (eb *EventBus) Subscribe() (SubscriberID, chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.generateUUIDID()

	ch := make(chan Event, subscriberBufferSize)
	subscriber := &Subscriber{
		ID:      id,
		Channel: ch,
	}

	eb.subscribers[id] = subscriber

	logx.Info("EVENTBUS", fmt.Sprintf("Client subscribed to program events | subscriber_id=%s | total_subscribers=%d", id, len(eb.subscribers)))

	return id, ch
}

// AddReactor registers a synchronous reactor. Reactors run in registration order.
func (eb *EventBus) AddReactor(r Reactor) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.generateUUIDID()
	eb.reactors[id] = r
	eb.order = append(eb.order, id)
	logx.Info("EVENTBUS", fmt.Sprintf("Reactor registered | reactor_id=%s | total_reactors=%d", id, len(eb.reactors)))
	return id
}

// Unsubscribe removes a subscription or a reactor by ID
func (eb *EventBus) Unsubscribe(id SubscriberID) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, ok := eb.reactors[id]; ok {
		delete(eb.reactors, id)
		for i, rid := range eb.order {
			if rid == id {
				eb.order = append(eb.order[:i:i], eb.order[i+1:]...)
				break
			}
		}
		logx.Info("EVENTBUS", fmt.Sprintf("Reactor removed | reactor_id=%s | remaining_reactors=%d", id, len(eb.reactors)))
		return true
	}

	subscriber, exists := eb.subscribers[id]
	if !exists {
		logx.Warn("EVENTBUS", fmt.Sprintf("Attempted to unsubscribe non-existent subscriber | subscriber_id=%s", id))
		return false
	}

	// Remove the subscription
	delete(eb.subscribers, id)
	close(subscriber.Channel)

	logx.Info("EVENTBUS", fmt.Sprintf("Client unsubscribed from events | subscriber_id=%s | remaining_subscribers=%d", id, len(eb.subscribers)))
	return true
}

// Publish delivers the event to all channel subscribers, then runs reactors synchronously.
// The lock is released before reactors run so they may publish again.
func (eb *EventBus) Publish(ctx context.Context, event Event) {
	eb.mu.RLock()
	monitoring.RecordEvent(string(event.Topic))

	if len(eb.subscribers) > 0 {
		logx.Debug("EVENTBUS", fmt.Sprintf("Publishing event | topic=%s | program=%s | subscribers=%d", event.Topic, event.Program, len(eb.subscribers)))

		for id, subscriber := range eb.subscribers {
			select {
			case subscriber.Channel <- event:
				// Event sent successfully
			default:
				// Channel is full, skip this subscriber
				monitoring.IncreaseDroppedEvents()
				logx.Warn("EVENTBUS", fmt.Sprintf("Subscriber channel full | subscriber_id=%s | topic=%s", id, event.Topic))
			}
		}
	}

	reactors := make([]Reactor, 0, len(eb.order))
	for _, id := range eb.order {
		reactors = append(reactors, eb.reactors[id])
	}
	eb.mu.RUnlock()

	for _, r := range reactors {
		r(ctx, event)
	}
}

// GetTotalSubscriptions returns the total number of active channel subscriptions
func (eb *EventBus) GetTotalSubscriptions() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	return len(eb.subscribers)
}

// GetSubscriberIDs returns a slice of all active subscriber IDs
func (eb *EventBus) GetSubscriberIDs() []SubscriberID {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	ids := make([]SubscriberID, 0, len(eb.subscribers))
	for id := range eb.subscribers {
		ids = append(ids, id)
	}
	return ids
}

// HasSubscriber checks if a subscriber or reactor with the given ID exists
func (eb *EventBus) HasSubscriber(id SubscriberID) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if _, exists := eb.subscribers[id]; exists {
		return true
	}
	_, exists := eb.reactors[id]
	return exists
}
