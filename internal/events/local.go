package events

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("event bus closed")

// LocalBus fans events out to in-process subscribers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[*Subscription]struct{}{}}
}

func (b *LocalBus) Subscribe(ctx context.Context) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	var sub *Subscription
	sub = newSubscription(func() { b.unregister(sub) })
	b.subs[sub] = struct{}{}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

func (b *LocalBus) unregister(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(ev)
	}
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = map[*Subscription]struct{}{}
	b.mu.Unlock()

	for sub := range subs {
		sub.mu.Lock()
		sub.stop = nil
		sub.mu.Unlock()
		sub.Close()
	}
	return nil
}
