package live

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Janitor runs the disconnect hooks of clients whose presence key expired.
type Janitor struct {
	store    *Store
	clock    clockwork.Clock
	interval time.Duration
}

func NewJanitor(store *Store, clock clockwork.Clock, interval time.Duration) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = JanitorInterval
	}
	return &Janitor{store: store, clock: clock, interval: interval}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := j.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("live janitor sweep failed")
			}
		}
	}
}

// Sweep executes the hooks of every offline client and returns how many ran.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	rdb := j.store.rdb
	clients, err := rdb.SMembers(ctx, clientIndexKey).Result()
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, clientID := range clients {
		online, err := j.store.online(ctx, clientID)
		if err != nil {
			return ran, err
		}
		if online {
			continue
		}

		hooks, err := j.store.Hooks(ctx, clientID)
		if err != nil {
			return ran, err
		}
		for _, h := range hooks {
			if err := j.apply(ctx, h); err != nil {
				log.Warn().Err(err).Str("client_id", clientID).Str("live_session_id", h.SessionID).Msg("disconnect hook failed")
				continue
			}
			ran++
		}
		if err := rdb.Del(ctx, hooksKey(clientID)).Err(); err != nil {
			return ran, err
		}
		if err := rdb.SRem(ctx, clientIndexKey, clientID).Err(); err != nil {
			return ran, err
		}
	}
	return ran, nil
}

func (j *Janitor) apply(ctx context.Context, h Hook) error {
	switch h.Action {
	case RemoveSession:
		log.Info().Str("live_session_id", h.SessionID).Msg("host disconnected, removing live session")
		return j.store.Remove(ctx, h.SessionID)
	case RemoveParticipant:
		log.Info().Str("live_session_id", h.SessionID).Str("user_id", h.UserID).Msg("participant disconnected")
		return j.store.RemoveParticipant(ctx, h.SessionID, h.UserID)
	default:
		return nil
	}
}
