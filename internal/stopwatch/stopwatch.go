package stopwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-stoperica/internal/laptime"

	"github.com/jonboulle/clockwork"
)

type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

const TickInterval = 10 * time.Millisecond

var (
	ErrAlreadyRunning = errors.New("stopwatch already running")
	ErrNotRunning     = errors.New("stopwatch not running")
	ErrNotPaused      = errors.New("stopwatch not paused")
	ErrPaused         = errors.New("stopwatch paused")
)

// Display holds the values refreshed by the periodic tick.
type Display struct {
	Total      time.Duration
	CurrentLap time.Duration
}

// Snapshot is a copy of the timing state safe to hand to other goroutines.
type Snapshot struct {
	State          State
	StartedAt      time.Time
	Laps           []string
	Sectors        [][]string
	CurrentSectors []string
	Display        Display
	// PendingSector is true while the sector anchor sits after the lap anchor,
	// i.e. at least one sector was recorded in the current lap.
	PendingSector bool

	best  time.Duration
	worst time.Duration
}

// BestLap reports the shortest completed lap, if any lap was recorded.
func (s Snapshot) BestLap() (time.Duration, bool) {
	return s.best, len(s.Laps) > 0
}

// WorstLap reports the longest completed lap, if any lap was recorded.
func (s Snapshot) WorstLap() (time.Duration, bool) {
	return s.worst, len(s.Laps) > 0
}

// Stopwatch is the lap/sector timing state machine.
type Stopwatch struct {
	clock  clockwork.Clock
	onTick func(Display)

	mu          sync.Mutex
	state       State
	startedAt   time.Time
	start       time.Time
	pausedAt    time.Time
	lapStart    time.Time
	sectorStart time.Time
	best        time.Duration
	worst       time.Duration
	laps        []string
	sectors     [][]string
	current     []string
	sectorCount int
	cancelTick  context.CancelFunc
}

type Option func(*Stopwatch)

// WithTick registers a callback invoked on every display tick while running.
func WithTick(fn func(Display)) Option {
	return func(s *Stopwatch) { s.onTick = fn }
}

func New(clock clockwork.Clock, opts ...Option) *Stopwatch {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Stopwatch{clock: clock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stopwatch) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrAlreadyRunning
	}

	now := s.clock.Now()
	s.state = Running
	s.startedAt = now
	s.start = now
	s.lapStart = now
	s.sectorStart = now
	s.startTickLocked()
	return nil
}

func (s *Stopwatch) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return ErrNotRunning
	}

	s.stopTickLocked()
	s.state = Paused
	s.pausedAt = s.clock.Now()
	return nil
}

func (s *Stopwatch) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return ErrNotPaused
	}

	shift := s.clock.Now().Sub(s.pausedAt)
	s.start = s.start.Add(shift)
	s.lapStart = s.lapStart.Add(shift)
	s.sectorStart = s.sectorStart.Add(shift)
	s.pausedAt = time.Time{}
	s.state = Running
	s.startTickLocked()
	return nil
}

// Stop returns the final state and clears every anchor and counter. Stopping
// an idle stopwatch returns an empty snapshot.
func (s *Stopwatch) Stop() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTickLocked()
	final := s.snapshotLocked()

	s.state = Idle
	s.startedAt = time.Time{}
	s.start = time.Time{}
	s.pausedAt = time.Time{}
	s.lapStart = time.Time{}
	s.sectorStart = time.Time{}
	s.best = 0
	s.worst = 0
	s.laps = nil
	s.sectors = nil
	s.current = nil
	s.sectorCount = 0
	return final
}

func (s *Stopwatch) AddLap() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActiveLocked(); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	lap := now.Sub(s.lapStart)
	if len(s.laps) == 0 || lap < s.best {
		s.best = lap
	}
	if len(s.laps) == 0 || lap > s.worst {
		s.worst = lap
	}

	s.laps = append(s.laps, laptime.LapLabel(len(s.laps)+1, lap))
	flushed := s.current
	if flushed == nil {
		flushed = []string{}
	}
	s.sectors = append(s.sectors, flushed)
	s.current = nil

	s.lapStart = now
	s.sectorStart = now
	s.sectorCount = 0
	return lap, nil
}

func (s *Stopwatch) AddSector() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActiveLocked(); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	sector := now.Sub(s.sectorStart)
	s.sectorCount++
	s.current = append(s.current, laptime.SectorLabel(s.sectorCount, sector))
	s.sectorStart = now
	return sector, nil
}

func (s *Stopwatch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stopwatch) Display() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayLocked()
}

func (s *Stopwatch) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Stopwatch) checkActiveLocked() error {
	switch s.state {
	case Running:
		return nil
	case Paused:
		return ErrPaused
	default:
		return ErrNotRunning
	}
}

// displayLocked is a pure read: a paused stopwatch reports the values frozen
// at the pause instant.
func (s *Stopwatch) displayLocked() Display {
	var now time.Time
	switch s.state {
	case Running:
		now = s.clock.Now()
	case Paused:
		now = s.pausedAt
	default:
		return Display{}
	}
	return Display{Total: now.Sub(s.start), CurrentLap: now.Sub(s.lapStart)}
}

func (s *Stopwatch) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:          s.state,
		StartedAt:      s.startedAt,
		Laps:           append([]string(nil), s.laps...),
		Sectors:        make([][]string, len(s.sectors)),
		CurrentSectors: append([]string(nil), s.current...),
		Display:        s.displayLocked(),
		PendingSector:  s.state != Idle && !s.sectorStart.Equal(s.lapStart),
		best:           s.best,
		worst:          s.worst,
	}
	for i, lap := range s.sectors {
		snap.Sectors[i] = append([]string{}, lap...)
	}
	return snap
}

// startTickLocked (re)starts the display ticker. Any previous ticker is cancelled first.
func (s *Stopwatch) startTickLocked() {
	s.stopTickLocked()
	if s.onTick == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTick = cancel
	ticker := s.clock.NewTicker(TickInterval)
	go s.runTicker(ctx, ticker)
}

func (s *Stopwatch) stopTickLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

func (s *Stopwatch) runTicker(ctx context.Context, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			s.onTick(s.Display())
		}
	}
}
