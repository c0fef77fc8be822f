// Package events carries the START_LAP / LAP / SECTOR signals between the
// proximity trigger and the stopwatch controls.
package events

import (
	"context"
	"sync"
	"time"
)

type Kind string

const (
	StartLap Kind = "START_LAP"
	Lap      Kind = "LAP"
	Sector   Kind = "SECTOR"
)

type Event struct {
	Kind Kind `json:"kind"`
	// SectorIndex is 1-based and only set for Sector events.
	SectorIndex int       `json:"sector_index,omitempty"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Bus interface {
	Publisher
	Subscribe(ctx context.Context) (*Subscription, error)
	Close() error
}

const subscriptionBuffer = 64

// Subscription is a handle on a stream of events. Close releases it; closing
// twice is a no-op.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	mu     sync.Mutex
	closed bool
	stop   func()
}

func newSubscription(stop func()) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	return &Subscription{C: ch, ch: ch, stop: stop}
}

// deliver drops the event when the subscriber is not keeping up.
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}
