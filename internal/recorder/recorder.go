// Package recorder ties a stopwatch run to local history, uploads and an
// optional live session.
package recorder

import (
	"context"
	"errors"
	"sync"

	"backend-stoperica/internal/history"
	"backend-stoperica/internal/live"
	"backend-stoperica/internal/session"
	"backend-stoperica/internal/stopwatch"
	"backend-stoperica/internal/summary"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyHosting = errors.New("already hosting a live session")

type Uploader interface {
	Upload(s session.Session)
}

type Options struct {
	Username string
	Location string
	Summary  summary.Config
}

type Recorder struct {
	sw       *stopwatch.Stopwatch
	clock    clockwork.Clock
	store    *history.Store
	uploader Uploader
	opts     Options

	mu   sync.Mutex
	host *live.Host
}

func New(sw *stopwatch.Stopwatch, clock clockwork.Clock, store *history.Store, uploader Uploader, opts Options) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{sw: sw, clock: clock, store: store, uploader: uploader, opts: opts}
}

func (r *Recorder) Stopwatch() *stopwatch.Stopwatch {
	return r.sw
}

// Host starts broadcasting the current run as a live session.
func (r *Recorder) Host(ctx context.Context, client *live.Client) (*live.Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != nil {
		return nil, ErrAlreadyHosting
	}
	h, err := client.Host(ctx, r.sw, r.opts.Location)
	if err != nil {
		return nil, err
	}
	r.host = h
	return h, nil
}

// Reset ends the run. With save set, a running lap's open sector is closed
// and the run is stored and uploaded. A hosted live session is ended either way.
// The returned bool reports whether a new session was stored.
func (r *Recorder) Reset(ctx context.Context, save bool) (session.Session, bool, error) {
	if save {
		snap := r.sw.Snapshot()
		if snap.State == stopwatch.Running && snap.PendingSector {
			if _, err := r.sw.AddSector(); err != nil {
				log.Warn().Err(err).Msg("closing trailing sector failed")
			}
		}
	}
	final := r.sw.Stop()

	r.mu.Lock()
	host := r.host
	r.host = nil
	r.mu.Unlock()

	var (
		saved   session.Session
		stored  bool
		saveErr error
	)
	if save {
		liveID := ""
		if host != nil {
			liveID = host.SessionID()
		}
		saved, stored, saveErr = r.save(ctx, final, liveID)
	}

	if host != nil {
		if err := host.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("live_session_id", host.SessionID()).Msg("live session not closed cleanly")
		}
	}
	return saved, stored, saveErr
}

func (r *Recorder) save(ctx context.Context, final stopwatch.Snapshot, liveID string) (session.Session, bool, error) {
	existing, err := r.store.List(ctx)
	if err != nil {
		return session.Session{}, false, err
	}
	s, ok := session.Build(final, session.Meta{
		Name:          session.DefaultName(len(existing) + 1),
		Username:      r.opts.Username,
		Location:      r.opts.Location,
		LiveSessionID: liveID,
		FinishedAt:    r.clock.Now(),
	}, r.opts.Summary)
	if !ok {
		log.Debug().Msg("no laps or sectors to save")
		return session.Session{}, false, nil
	}

	stored, err := r.store.Save(ctx, s)
	if err != nil || !stored {
		return s, false, err
	}
	if r.uploader != nil {
		r.uploader.Upload(s)
	}
	return s, true, nil
}
