package bus

import (
	"sync"

	"github.com/google/uuid"
)

// Event is one named notification published by the watcher. Payload is
// event-specific and may be nil.
type Event struct {
	Name    string
	Payload any
}

type Handler func(Event)

type subscription struct {
	token   string
	name    string
	handler Handler
}

// Bus is a small in-process event bus standing in for the host plugin
// runtime. Handlers run synchronously on the publisher's goroutine in
// subscription order, so a single publisher observes its own emission
// order.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for events with the given name and
// returns a token for Unsubscribe. An empty name subscribes to every
// event.
func (b *Bus) Subscribe(name string, h Handler) string {
	token := uuid.NewString()
	b.mu.Lock()
	b.subs = append(b.subs, subscription{token: token, name: name, handler: h})
	b.mu.Unlock()
	return token
}

func (b *Bus) Unsubscribe(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.token == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(name string, payload any) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.name == "" || sub.name == name {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	evt := Event{Name: name, Payload: payload}
	for _, h := range targets {
		h(evt)
	}
}
