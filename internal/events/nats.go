package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSBus publishes events on a per-device subject so that a trigger and a
// stopwatch can run in different processes.
type NATSBus struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

func Subject(deviceID string) string {
	return "stoperica." + deviceID + ".events"
}

func ConnectNATS(url, deviceID string) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("stoperica-"+deviceID))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	bus := NewNATSBus(conn, deviceID)
	bus.owned = true
	return bus, nil
}

func NewNATSBus(conn *nats.Conn, deviceID string) *NATSBus {
	return &NATSBus{conn: conn, subject: Subject(deviceID)}
}

func (b *NATSBus) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context) (*Subscription, error) {
	var natsSub *nats.Subscription
	sub := newSubscription(func() {
		if natsSub != nil {
			if err := natsSub.Unsubscribe(); err != nil {
				log.Debug().Err(err).Str("subject", b.subject).Msg("nats unsubscribe")
			}
		}
	})

	natsSub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
			return
		}
		sub.deliver(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = natsSub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

// Close flushes pending events and, for a bus from ConnectNATS, closes the
// connection.
func (b *NATSBus) Close() error {
	err := b.conn.Flush()
	if b.owned {
		b.conn.Close()
	}
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}
