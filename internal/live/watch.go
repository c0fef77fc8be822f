package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Update is one delivery to a watcher: the full record, or Removed when the
// host ended the session.
type Update struct {
	Session LiveSession
	Removed bool
}

// Subscription delivers record snapshots until it is closed, its context
// ends, or the record is removed.
type Subscription struct {
	C <-chan Update

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Watch subscribes to a session and delivers the current record first.
func (s *Store) Watch(ctx context.Context, id string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := s.rdb.Subscribe(ctx, SnapshotChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe live session: %w", err)
	}

	initial, err := s.Get(ctx, id)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Update, 16)
	sub := &Subscription{C: out, pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	out <- Update{Session: initial}

	go sub.run(ctx, out)
	return sub, nil
}

func (sub *Subscription) run(ctx context.Context, out chan<- Update) {
	defer close(sub.done)
	defer close(out)
	defer func() { _ = sub.pubsub.Close() }()

	msgs := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			update, err := decodeUpdate(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed snapshot")
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
			if update.Removed {
				return
			}
		}
	}
}

// Close stops delivery and releases the Redis subscription. It is safe to
// call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.cancel()
		<-sub.done
	})
}

func decodeUpdate(payload string) (Update, error) {
	if payload == "" {
		return Update{Removed: true}, nil
	}
	var session LiveSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return Update{}, err
	}
	if session.SessionID == "" {
		return Update{}, errors.New("snapshot without session id")
	}
	return Update{Session: session}, nil
}
