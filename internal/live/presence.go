package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type HookAction string

const (
	RemoveSession     HookAction = "remove_session"
	RemoveParticipant HookAction = "remove_participant"
)

// Hook is a cleanup the server runs on behalf of a client whose presence
// expired without an explicit leave.
type Hook struct {
	Action    HookAction `json:"action"`
	SessionID string     `json:"sessionId"`
	UserID    string     `json:"userId,omitempty"`
}

// OnDisconnect registers hook for clientID, replacing any earlier hook for
// the same session.
func (s *Store) OnDisconnect(ctx context.Context, clientID string, hook Hook) error {
	raw, err := json.Marshal(hook)
	if err != nil {
		return fmt.Errorf("encode hook: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hooksKey(clientID), hook.SessionID, string(raw))
		pipe.SAdd(ctx, clientIndexKey, clientID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register disconnect hook: %w", err)
	}
	return nil
}

// CancelDisconnect drops the hook registered for sessionID.
func (s *Store) CancelDisconnect(ctx context.Context, clientID, sessionID string) error {
	if err := s.rdb.HDel(ctx, hooksKey(clientID), sessionID).Err(); err != nil {
		return fmt.Errorf("cancel disconnect hook: %w", err)
	}
	return nil
}

func (s *Store) Hooks(ctx context.Context, clientID string) ([]Hook, error) {
	raw, err := s.rdb.HGetAll(ctx, hooksKey(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load hooks: %w", err)
	}
	hooks := make([]Hook, 0, len(raw))
	for _, v := range raw {
		var h Hook
		if err := json.Unmarshal([]byte(v), &h); err != nil {
			continue
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

// Touch marks clientID connected for ttl.
func (s *Store) Touch(ctx context.Context, clientID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, presenceKey(clientID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

// Disconnect drops the presence key, as if the connection went away.
func (s *Store) Disconnect(ctx context.Context, clientID string) error {
	return s.rdb.Del(ctx, presenceKey(clientID)).Err()
}

func (s *Store) online(ctx context.Context, clientID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, presenceKey(clientID)).Result()
	return n > 0, err
}
