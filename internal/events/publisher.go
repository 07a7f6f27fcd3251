package events

import (
	"sync"

	"modelbridge/pkg/types"
)

// EventPublisher receives events from the bridge. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(types.Event)
}

// Handler is a subscriber callback. It runs on the bridge's reader goroutine
// (or the deferred-event timer) and must not block.
type Handler func(types.Event)

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e types.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Event, len(p.events))
	copy(out, p.events)
	return out
}

// chanPublisher forwards events to a buffered channel, dropping when full.
type chanPublisher struct {
	ch      chan types.Event
	dropped func()
}

func (c chanPublisher) Publish(e types.Event) {
	select {
	case c.ch <- e:
	default:
		if c.dropped != nil {
			c.dropped()
		}
	}
}
