package events

import (
	"context"
	"time"

	"github.com/mezonai/custody/types"
)

// Topic is an enum-like string type for program events
type Topic string

const (
	TopicTransfer Topic = "xfer"
	TopicApprove  Topic = "approve"
	TopicPermit   Topic = "permit"
	TopicMint     Topic = "mint"
	TopicSetAdmin Topic = "set_admin"
	TopicInit     Topic = "init"
	TopicDeposit  Topic = "deposit"
	TopicWithdraw Topic = "withdraw"
	TopicExec     Topic = "exec"
)

// Event is a notification about a state change; it is a side channel, never persisted state.
type Event struct {
	Topic     Topic             `json:"topic"`
	Program   types.Identity    `json:"program"`
	Fields    map[string]string `json:"fields,omitempty"`
	Amount    uint64            `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent stamps an event with the current time. Fields are given as key/value pairs.
func NewEvent(topic Topic, program types.Identity, amount uint64, kv ...string) Event {
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return Event{
		Topic:     topic,
		Program:   program,
		Fields:    fields,
		Amount:    amount,
		Timestamp: time.Now(),
	}
}

// Field returns the value stored under key, empty when absent
func (e Event) Field(key string) string {
	return e.Fields[key]
}

// Publisher is the port programs use to emit events
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Reactor is invoked synchronously during Publish with the publisher's context,
// so it may call back into the program that emitted the event.
type Reactor func(ctx context.Context, event Event)

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
