package upload

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const HealthPath = "/health"

// Watcher polls the archive health route and drains the retry queue every
// time the archive becomes reachable again.
type Watcher struct {
	client   *Client
	uploader *Uploader
	clock    clockwork.Clock
	interval time.Duration
	online   bool
}

func NewWatcher(client *Client, uploader *Uploader, clock clockwork.Clock, interval time.Duration) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Watcher{client: client, uploader: uploader, clock: clock, interval: interval}
}

func (w *Watcher) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.Check(ctx)
		}
	}
}

// Check probes once and reports whether the archive is reachable.
func (w *Watcher) Check(ctx context.Context) bool {
	_, err := w.client.Get(HealthPath)
	reachable := err == nil
	cameOnline := reachable && !w.online
	w.online = reachable

	if !cameOnline {
		return reachable
	}
	n, err := w.uploader.RetryFailed(ctx)
	switch {
	case errors.Is(err, ErrUploadInFlight):
		// an upload is running; retry on the next transition
		w.online = false
	case err != nil:
		log.Error().Err(err).Msg("retry of failed uploads aborted")
	case n > 0:
		log.Info().Int("uploaded", n).Msg("failed uploads resent")
	}
	return reachable
}
