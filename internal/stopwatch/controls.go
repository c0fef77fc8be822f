package stopwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-stoperica/internal/events"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	StartLapDebounce = 500 * time.Millisecond
	SectorDebounce   = 300 * time.Millisecond
)

var ErrDebounced = errors.New("press ignored by debounce")

// Controls mirrors the stopwatch buttons: start/stop and lap share one
// debounce window, sector has its own.
type Controls struct {
	sw    *Stopwatch
	clock clockwork.Clock

	mu           sync.Mutex
	lastStartLap time.Time
	lastSector   time.Time
	onStart      func()
}

func NewControls(sw *Stopwatch, clock clockwork.Clock) *Controls {
	if clock == nil {
		clock = sw.clock
	}
	return &Controls{sw: sw, clock: clock}
}

// OnStart registers a callback fired after the stopwatch starts from idle.
func (c *Controls) OnStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStart = fn
}

// StartStop starts an idle stopwatch, pauses a running one and resumes a paused one.
func (c *Controls) StartStop() error {
	if !c.allow(&c.lastStartLap, StartLapDebounce) {
		return ErrDebounced
	}

	switch c.sw.State() {
	case Running:
		return c.sw.Pause()
	case Paused:
		return c.sw.Resume()
	default:
		if err := c.sw.Start(); err != nil {
			return err
		}
		c.mu.Lock()
		fn := c.onStart
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
		return nil
	}
}

func (c *Controls) Lap() error {
	if !c.allow(&c.lastStartLap, StartLapDebounce) {
		return ErrDebounced
	}
	_, err := c.sw.AddLap()
	return err
}

func (c *Controls) Sector() error {
	if !c.allow(&c.lastSector, SectorDebounce) {
		return ErrDebounced
	}
	_, err := c.sw.AddSector()
	return err
}

func (c *Controls) allow(last *time.Time, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if !last.IsZero() && now.Sub(*last) <= window {
		return false
	}
	*last = now
	return true
}

// Listen dispatches bus events to the matching button until ctx ends or the
// subscription closes.
func (c *Controls) Listen(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := c.Handle(ev); err != nil {
				log.Debug().Err(err).Str("event", string(ev.Kind)).Msg("event not applied")
			}
		}
	}
}

func (c *Controls) Handle(ev events.Event) error {
	switch ev.Kind {
	case events.StartLap:
		return c.StartStop()
	case events.Lap:
		return c.Lap()
	case events.Sector:
		return c.Sector()
	default:
		return nil
	}
}

// Publish applies ev in place, so Controls can stand in for a bus. Rejected
// presses are logged and dropped like bus events.
func (c *Controls) Publish(_ context.Context, ev events.Event) error {
	if err := c.Handle(ev); err != nil {
		log.Debug().Err(err).Str("event", string(ev.Kind)).Msg("event not applied")
	}
	return nil
}
