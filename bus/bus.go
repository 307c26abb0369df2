// Package bus broadcasts session-change notifications so independent
// consumers observe login and logout without holding references to each
// other.
package bus

import (
	"context"
	"sync"

	"go.pilab.hu/authflow/domain"
)

// Handler receives a session-change notification: the new user on login
// or refresh, nil on logout. Handlers must be idempotent; no ordering
// is guaranteed across distinct subscribers.
type Handler func(user *domain.UserRecord)

// Bus is the session event channel. Publish notifies every current
// subscriber synchronously. Subscribe registers a handler and returns
// its unsubscribe function.
type Bus interface {
	Publish(ctx context.Context, user *domain.UserRecord)
	Subscribe(h Handler) (unsubscribe func())
}

// MemoryBus implements Bus for subscribers within one process.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Handler
	order  []int
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]Handler)}
}

// Subscribe implements Bus.Subscribe.
func (b *MemoryBus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; !ok {
			return
		}
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish implements Bus.Publish. Handlers run on the caller's
// goroutine; a snapshot is taken so handlers may unsubscribe themselves.
func (b *MemoryBus) Publish(_ context.Context, user *domain.UserRecord) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(user)
	}
}
