// Package proximity turns location fixes into START_LAP, LAP and SECTOR
// events when the device passes a track marker.
package proximity

import (
	"context"
	"sync"
	"time"

	"backend-stoperica/internal/events"
	"backend-stoperica/internal/shared/geo"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultThresholdM = 20.0
	DefaultCooldown   = 5 * time.Second
)

// Markers is the start/finish line plus the ordered sector markers.
type Markers struct {
	Start   *geo.Point  `json:"startLapPosition" yaml:"start"`
	Sectors []geo.Point `json:"sectorPositions" yaml:"sectors"`
}

func (m Markers) Empty() bool {
	return m.Start == nil && len(m.Sectors) == 0
}

type Fix struct {
	geo.Point `yaml:",inline"`
	// Offset positions the fix in a recorded track, relative to its first fix.
	Offset time.Duration `yaml:"offset"`
}

type Config struct {
	ThresholdM float64
	Cooldown   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ThresholdM <= 0 {
		c.ThresholdM = DefaultThresholdM
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// Trigger fires at most one event per cooldown window: the first marker in
// range wins, start before sectors.
type Trigger struct {
	markers Markers
	cfg     Config
	clock   clockwork.Clock

	mu       sync.Mutex
	last     time.Time
	fired    bool
	lapArmed bool
}

func NewTrigger(markers Markers, cfg Config, clock clockwork.Clock) *Trigger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Trigger{markers: markers, cfg: cfg.withDefaults(), clock: clock}
}

// Check evaluates one fix and returns the event it triggers, if any.
func (t *Trigger) Check(p geo.Point) (events.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.fired && now.Sub(t.last) < t.cfg.Cooldown {
		return events.Event{}, false
	}

	if t.markers.Start != nil && geo.DistanceM(p, *t.markers.Start) <= t.cfg.ThresholdM {
		kind := events.Lap
		if !t.lapArmed {
			kind = events.StartLap
			t.lapArmed = true
		}
		return t.fireLocked(events.Event{Kind: kind, At: now}), true
	}
	for i, marker := range t.markers.Sectors {
		if geo.DistanceM(p, marker) <= t.cfg.ThresholdM {
			return t.fireLocked(events.Event{Kind: events.Sector, SectorIndex: i + 1, At: now}), true
		}
	}
	return events.Event{}, false
}

func (t *Trigger) fireLocked(ev events.Event) events.Event {
	t.last = ev.At
	t.fired = true
	return ev
}

// Reset forgets the first start crossing, so the next one is START_LAP again.
func (t *Trigger) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lapArmed = false
	t.fired = false
}

// Run checks every fix from fixes and publishes what fires, until ctx ends or
// fixes closes.
func (t *Trigger) Run(ctx context.Context, fixes <-chan geo.Point, pub events.Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-fixes:
			if !ok {
				return
			}
			ev, fired := t.Check(p)
			if !fired {
				continue
			}
			if err := pub.Publish(ctx, ev); err != nil {
				log.Warn().Err(err).Str("event", string(ev.Kind)).Msg("publish proximity event failed")
			}
		}
	}
}
