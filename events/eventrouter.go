package events

import (
	"context"
	"sync"

	"github.com/mezonai/custody/types"
)

// EventRouter dispatches events to reactors registered for a topic, optionally
// restricted to one program
type EventRouter struct {
	mu     sync.RWMutex
	routes map[Topic][]route
}

type route struct {
	program *types.Identity
	reactor Reactor
}

// NewEventRouter creates a router and attaches it to the bus as a reactor
func NewEventRouter(eventBus *EventBus) *EventRouter {
	er := &EventRouter{routes: make(map[Topic][]route)}
	if eventBus != nil {
		eventBus.AddReactor(er.Dispatch)
	}
	return er
}

// On registers r for every event of topic
func (er *EventRouter) On(topic Topic, r Reactor) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.routes[topic] = append(er.routes[topic], route{reactor: r})
}

// OnProgram registers r for events of topic emitted by program only
func (er *EventRouter) OnProgram(topic Topic, program types.Identity, r Reactor) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.routes[topic] = append(er.routes[topic], route{program: &program, reactor: r})
}

// Dispatch runs the matching reactors on the caller's goroutine
func (er *EventRouter) Dispatch(ctx context.Context, event Event) {
	er.mu.RLock()
	matched := make([]Reactor, 0, len(er.routes[event.Topic]))
	for _, rt := range er.routes[event.Topic] {
		if rt.program != nil && *rt.program != event.Program {
			continue
		}
		matched = append(matched, rt.reactor)
	}
	er.mu.RUnlock()

	for _, r := range matched {
		r(ctx, event)
	}
}
