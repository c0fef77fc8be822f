package stream

import (
	"context"
	"sync"

	"backend-stoperica/internal/live"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Hub fans live session snapshots out to websocket viewers. Snapshots reach
// it through the live store's pub/sub channels, so any process writing to the
// store feeds every hub.
type Hub struct {
	redis   *redis.Client
	store   *live.Store
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		h.store = live.NewStore(redisClient)
		h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
	}
	close(client.Send)
}

// Viewers reports how many clients watch sessionID on this hub.
func (h *Hub) Viewers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Broadcast delivers payload to this hub's viewers of sessionID. Slow viewers
// drop messages rather than block the hub.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// Initial returns the current record so a new viewer does not wait for the
// next broadcast. It reports live.ErrSessionNotFound for unknown sessions.
func (h *Hub) Initial(ctx context.Context, sessionID string) ([]byte, bool, error) {
	if h.store == nil {
		return nil, false, nil
	}
	payload, err := h.store.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (h *Hub) Close() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *Hub) subscribeRedis() {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := h.redis.PSubscribe(ctx, live.SnapshotChannel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Msg("snapshot subscription failed")
		_ = pubsub.Close()
		cancel()
		return
	}

	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				sessionID := live.SessionIDFromChannel(msg.Channel)
				if sessionID == "" {
					continue
				}
				h.Broadcast(sessionID, []byte(msg.Payload))
			}
		}
	}()
}
