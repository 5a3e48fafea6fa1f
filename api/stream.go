package api

import (
	"context"
	"sync"

	"choreshore-bridge/domain"
)

// Broker fans snapshots out to SSE subscribers. Each subscriber keeps only
// the newest undelivered snapshot.
type Broker struct {
	mu   sync.Mutex
	subs map[chan *domain.Snapshot]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan *domain.Snapshot]struct{})}
}

func (b *Broker) subscribe() chan *domain.Snapshot {
	ch := make(chan *domain.Snapshot, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan *domain.Snapshot) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Subscribers returns the number of connected streams.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish hands snap to every subscriber without blocking.
func (b *Broker) Publish(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// SnapshotUpdated lets the broker listen to the coordinator directly.
func (b *Broker) SnapshotUpdated(_ context.Context, snap *domain.Snapshot) {
	b.Publish(snap)
}
