package app

import (
	"sync"
	"sync/atomic"

	"github.com/fd1az/socialpay-sync/business/chainsync/domain"
)

// Broadcaster fans reconciled states out to subscribers without blocking the publisher.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[uint64]chan domain.ChainState
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan domain.ChainState)}
}

// Subscribe registers a subscriber with the given buffer. The returned cancel
// func unsubscribes and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan domain.ChainState, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.ChainState, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers state to every subscriber with room in its buffer.
// Full subscribers miss the update and the drop is counted.
func (b *Broadcaster) Publish(state domain.ChainState) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- state.Clone():
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of undelivered updates.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later Subscribe calls get a closed channel.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
