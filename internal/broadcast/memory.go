package broadcast

import (
	"context"
	"sync"

	"messaging-gateway/internal/models"
)

// MemoryBackend is the in-process reference backend. Each group keeps its own
// subscriber registry behind its own lock; Send holds the group lock across
// the fan-out so all subscribers of one group observe every event in a single
// total per-group order, including under concurrent senders.
type MemoryBackend struct {
	mu     sync.RWMutex
	groups map[string]*memoryGroup
}

type memoryGroup struct {
	mu   sync.Mutex
	subs map[Subscriber]struct{}
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{groups: make(map[string]*memoryGroup)}
}

// Join registers a subscriber with a group, creating the group if needed.
// The outer lock is held across the insert: releasing it first would let a
// concurrent last-Leave delete the group and strand the subscriber in an
// orphaned registry that Send can no longer find.
func (b *MemoryBackend) Join(group string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		g = &memoryGroup{subs: make(map[Subscriber]struct{})}
		b.groups[group] = g
	}
	g.mu.Lock()
	g.subs[sub] = struct{}{}
	g.mu.Unlock()
}

// Leave removes a subscriber from a group; empty groups are discarded.
func (b *MemoryBackend) Leave(group string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.subs, sub)
	empty := len(g.subs) == 0
	g.mu.Unlock()
	if empty {
		delete(b.groups, group)
	}
}

// Send delivers the event to every current subscriber of the group. Sending
// to a group with no subscribers is a no-op.
func (b *MemoryBackend) Send(ctx context.Context, group string, event models.ServerEvent) error {
	b.mu.RLock()
	g, ok := b.groups[group]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for sub := range g.subs {
		sub.Deliver(event)
	}
	return nil
}

func (b *MemoryBackend) groupSize(group string) int {
	b.mu.RLock()
	g, ok := b.groups[group]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}
