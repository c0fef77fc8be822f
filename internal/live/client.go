package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"backend-stoperica/internal/laptime"
	"backend-stoperica/internal/stopwatch"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrNotRunning = errors.New("stopwatch not running")

// Identity names the device (ClientID) and the person (UserID, Username)
// taking part in live sessions.
type Identity struct {
	ClientID string
	UserID   string
	Username string
}

type Options struct {
	BroadcastInterval time.Duration
	SessionTimeout    time.Duration
	PresenceTTL       time.Duration
}

func (o Options) withDefaults() Options {
	if o.BroadcastInterval <= 0 {
		o.BroadcastInterval = BroadcastInterval
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = SessionTimeout
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = PresenceTTL
	}
	return o
}

// Source is the timing state a host broadcasts.
type Source interface {
	Snapshot() stopwatch.Snapshot
}

type Client struct {
	store *Store
	clock clockwork.Clock
	id    Identity
	opts  Options
}

func NewClient(store *Store, clock clockwork.Clock, id Identity, opts Options) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if id.ClientID == "" {
		id.ClientID = uuid.NewString()
	}
	return &Client{store: store, clock: clock, id: id, opts: opts.withDefaults()}
}

func (c *Client) Identity() Identity {
	return c.id
}

// KeepAlive refreshes the presence key until ctx ends. Disconnect hooks run
// once it stops and the key expires.
func (c *Client) KeepAlive(ctx context.Context) {
	if err := c.store.Touch(ctx, c.id.ClientID, c.opts.PresenceTTL); err != nil {
		log.Warn().Err(err).Msg("presence refresh failed")
	}
	ticker := c.clock.NewTicker(c.opts.PresenceTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := c.store.Touch(ctx, c.id.ClientID, c.opts.PresenceTTL); err != nil {
				log.Warn().Err(err).Msg("presence refresh failed")
			}
		}
	}
}

// Discover lists active sessions written within the session timeout, newest first.
func (c *Client) Discover(ctx context.Context) ([]LiveSession, error) {
	active, err := c.store.Active(ctx)
	if err != nil {
		return nil, err
	}
	return FilterFresh(active, c.clock.Now(), c.opts.SessionTimeout), nil
}

// FilterFresh drops inactive and stale records and sorts by creation time, newest first.
func FilterFresh(sessions []LiveSession, now time.Time, timeout time.Duration) []LiveSession {
	fresh := make([]LiveSession, 0, len(sessions))
	for _, s := range sessions {
		if s.IsActive && s.Fresh(now, timeout) {
			fresh = append(fresh, s)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].CreatedAt > fresh[j].CreatedAt })
	return fresh
}

// Host creates a live session mirroring src and starts broadcasting it.
func (c *Client) Host(ctx context.Context, src Source, location string) (*Host, error) {
	if location == "" {
		location = DefaultLocation
	}
	id := uuid.NewString()
	record := LiveSession{
		SessionID:    id,
		HostID:       c.id.UserID,
		HostName:     c.id.Username,
		SessionName:  fmt.Sprintf("%s's Session", c.id.Username),
		Participants: map[string]string{c.id.UserID: c.id.Username},
		Laps:         []string{},
		IsActive:     true,
		Location:     location,
		BestLap:      laptime.NotAvailable,
		WorstLap:     laptime.NotAvailable,
		TotalTime:    DefaultTotalTime,
		CreatedAt:    c.clock.Now().UnixMilli(),
	}
	if err := c.store.Touch(ctx, c.id.ClientID, c.opts.PresenceTTL); err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := c.store.OnDisconnect(ctx, c.id.ClientID, Hook{Action: RemoveSession, SessionID: id}); err != nil {
		_ = c.store.Remove(ctx, id)
		return nil, err
	}

	bctx, cancel := context.WithCancel(context.Background())
	h := &Host{client: c, src: src, sessionID: id, cancel: cancel, done: make(chan struct{})}
	go h.run(bctx)

	log.Info().Str("live_session_id", id).Msg("live session created")
	return h, nil
}

// Join adds the caller as a participant and starts watching the session.
func (c *Client) Join(ctx context.Context, sessionID string) (*Participant, error) {
	// A hook registered without presence would be swept straight away.
	if err := c.store.Touch(ctx, c.id.ClientID, c.opts.PresenceTTL); err != nil {
		return nil, err
	}
	if err := c.store.SetParticipant(ctx, sessionID, c.id.UserID, c.id.Username); err != nil {
		return nil, err
	}
	hook := Hook{Action: RemoveParticipant, SessionID: sessionID, UserID: c.id.UserID}
	if err := c.store.OnDisconnect(ctx, c.id.ClientID, hook); err != nil {
		_ = c.store.RemoveParticipant(ctx, sessionID, c.id.UserID)
		return nil, err
	}
	sub, err := c.store.Watch(ctx, sessionID)
	if err != nil {
		_ = c.store.CancelDisconnect(ctx, c.id.ClientID, sessionID)
		_ = c.store.RemoveParticipant(ctx, sessionID, c.id.UserID)
		return nil, err
	}

	log.Info().Str("live_session_id", sessionID).Msg("joined live session")
	return &Participant{client: c, sessionID: sessionID, sub: sub}, nil
}

// leave marks the record inactive and then runs remove. Local resources are
// the caller's to release whatever happens here.
func (c *Client) leave(ctx context.Context, sessionID string, remove func() error) error {
	err := c.store.Update(ctx, sessionID, Fields{"isActive": false, "timestamp": ServerTimestamp})
	if err == nil {
		err = remove()
	}
	if cerr := c.store.CancelDisconnect(ctx, c.id.ClientID, sessionID); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Host is the broadcasting side of a live session.
type Host struct {
	client    *Client
	src       Source
	sessionID string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (h *Host) SessionID() string {
	return h.sessionID
}

func (h *Host) run(ctx context.Context) {
	defer close(h.done)
	ticker := h.client.clock.NewTicker(h.client.opts.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := h.Broadcast(ctx); err != nil && !errors.Is(err, ErrNotRunning) && ctx.Err() == nil {
				log.Warn().Err(err).Str("live_session_id", h.sessionID).Msg("live broadcast failed")
			}
		}
	}
}

// Broadcast pushes the current timing state once. It does nothing unless the
// stopwatch is running.
func (h *Host) Broadcast(ctx context.Context) error {
	snap := h.src.Snapshot()
	if snap.State != stopwatch.Running {
		return ErrNotRunning
	}
	sectors := make([][]string, 0, len(snap.Sectors)+1)
	sectors = append(sectors, snap.Sectors...)
	sectors = append(sectors, snap.CurrentSectors)

	best, hasBest := snap.BestLap()
	worst, hasWorst := snap.WorstLap()
	laps := snap.Laps
	if laps == nil {
		laps = []string{}
	}
	return h.client.store.Update(ctx, h.sessionID, Fields{
		"laps":      laps,
		"sectors":   EncodeSectors(sectors),
		"bestLap":   BestLabel(best, hasBest),
		"worstLap":  WorstLabel(worst, hasWorst),
		"totalTime": laptime.Format(snap.Display.Total),
		"timestamp": ServerTimestamp,
		"isActive":  true,
	})
}

// Stop halts the broadcaster without touching the shared record.
func (h *Host) Stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

// Leave ends the session: the broadcaster stops, the record is flagged
// inactive and then removed.
func (h *Host) Leave(ctx context.Context) error {
	h.Stop()
	err := h.client.leave(ctx, h.sessionID, func() error {
		return h.client.store.Remove(ctx, h.sessionID)
	})
	if err != nil {
		log.Warn().Err(err).Str("live_session_id", h.sessionID).Msg("leaving live session failed")
		return err
	}
	log.Info().Str("live_session_id", h.sessionID).Msg("live session ended")
	return nil
}

// Participant is the watching side of a live session.
type Participant struct {
	client    *Client
	sessionID string
	sub       *Subscription
}

func (p *Participant) SessionID() string {
	return p.sessionID
}

// Updates delivers record snapshots. The channel closes after the session is
// removed or the participant leaves.
func (p *Participant) Updates() <-chan Update {
	return p.sub.C
}

func (p *Participant) Leave(ctx context.Context) error {
	p.sub.Close()
	err := p.client.leave(ctx, p.sessionID, func() error {
		return p.client.store.RemoveParticipant(ctx, p.sessionID, p.client.id.UserID)
	})
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Warn().Err(err).Str("live_session_id", p.sessionID).Msg("leaving live session failed")
		return err
	}
	log.Info().Str("live_session_id", p.sessionID).Msg("left live session")
	return nil
}
