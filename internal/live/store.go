package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("live session not found")

const (
	sessionIndexKey = "live:sessions"
	clientIndexKey  = "live:clients"
	snapshotPattern = "live:*:snapshot"
)

func sessionKey(id string) string      { return "live:session:" + id }
func participantsKey(id string) string { return "live:session:" + id + ":participants" }
func hooksKey(clientID string) string  { return "live:ondisconnect:" + clientID }
func presenceKey(clientID string) string {
	return "live:presence:" + clientID
}

// SnapshotChannel is the pub/sub channel carrying whole-record snapshots of a
// session. An empty payload means the record was removed.
func SnapshotChannel(id string) string { return "live:" + id + ":snapshot" }

// SessionIDFromChannel extracts the session id from a snapshot channel name.
func SessionIDFromChannel(ch string) string {
	const prefix = "live:"
	const suffix = ":snapshot"
	if !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) || len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}

// ServerTimestamp in a Fields map is replaced by the store's clock.
type serverTimestamp struct{}

var ServerTimestamp = serverTimestamp{}

// Fields is a partial update of a live session keyed by JSON field name.
type Fields map[string]any

// updateIfExists writes hash fields only while the record exists, so a late
// write can not resurrect a removed session.
var updateIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// Store keeps live sessions in Redis hashes and fans out snapshots over pub/sub.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// ServerTime is the Redis server clock, shared by every client.
func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	return s.rdb.Time(ctx).Result()
}

// Create writes the full record, replacing any previous one with the same id.
func (s *Store) Create(ctx context.Context, session LiveSession) error {
	if session.Timestamp == 0 {
		now, err := s.ServerTime(ctx)
		if err != nil {
			return fmt.Errorf("server time: %w", err)
		}
		session.Timestamp = now.UnixMilli()
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode live session: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("encode live session: %w", err)
	}
	delete(doc, "participants")

	values := make(map[string]any, len(doc))
	for k, v := range doc {
		values[k] = string(v)
	}
	participants := make(map[string]any, len(session.Participants))
	for k, v := range session.Participants {
		participants[k] = v
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(session.SessionID), participantsKey(session.SessionID))
		pipe.HSet(ctx, sessionKey(session.SessionID), values)
		if len(participants) > 0 {
			pipe.HSet(ctx, participantsKey(session.SessionID), participants)
		}
		pipe.SAdd(ctx, sessionIndexKey, session.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create live session: %w", err)
	}
	s.publish(ctx, session.SessionID)
	return nil
}

// Update applies a partial write to an existing record.
func (s *Store) Update(ctx context.Context, id string, fields Fields) error {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			now, err := s.ServerTime(ctx)
			if err != nil {
				return fmt.Errorf("server time: %w", err)
			}
			v = now.UnixMilli()
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		args = append(args, k, string(raw))
	}
	if len(args) == 0 {
		return nil
	}

	ok, err := updateIfExists.Run(ctx, s.rdb, []string{sessionKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("update live session: %w", err)
	}
	if ok == 0 {
		return ErrSessionNotFound
	}
	s.publish(ctx, id)
	return nil
}

func (s *Store) SetParticipant(ctx context.Context, id, userID, name string) error {
	exists, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check live session: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}
	if err := s.rdb.HSet(ctx, participantsKey(id), userID, name).Err(); err != nil {
		return fmt.Errorf("set participant: %w", err)
	}
	s.publish(ctx, id)
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, id, userID string) error {
	if err := s.rdb.HDel(ctx, participantsKey(id), userID).Err(); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	s.publish(ctx, id)
	return nil
}

// Remove deletes the record and tells watchers it is gone.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id), participantsKey(id))
		pipe.SRem(ctx, sessionIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove live session: %w", err)
	}
	if err := s.rdb.Publish(ctx, SnapshotChannel(id), "").Err(); err != nil {
		log.Warn().Err(err).Str("live_session_id", id).Msg("publish removal failed")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (LiveSession, error) {
	fields, err := s.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return LiveSession{}, fmt.Errorf("load live session: %w", err)
	}
	if len(fields) == 0 {
		return LiveSession{}, ErrSessionNotFound
	}
	participants, err := s.rdb.HGetAll(ctx, participantsKey(id)).Result()
	if err != nil {
		return LiveSession{}, fmt.Errorf("load participants: %w", err)
	}
	return decodeRecord(fields, participants)
}

// Active returns every indexed record still flagged active. Freshness is left
// to the caller.
func (s *Store) Active(ctx context.Context) ([]LiveSession, error) {
	ids, err := s.rdb.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	out := make([]LiveSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			_ = s.rdb.SRem(ctx, sessionIndexKey, id).Err()
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("live_session_id", id).Msg("skipping unreadable live session")
			continue
		}
		if session.IsActive {
			out = append(out, session)
		}
	}
	return out, nil
}

// Snapshot returns the encoded record as published to watchers.
func (s *Store) Snapshot(ctx context.Context, id string) ([]byte, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(session)
}

func (s *Store) publish(ctx context.Context, id string) {
	payload, err := s.Snapshot(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		payload = nil
	} else if err != nil {
		log.Warn().Err(err).Str("live_session_id", id).Msg("snapshot failed")
		return
	}
	if err := s.rdb.Publish(ctx, SnapshotChannel(id), payload).Err(); err != nil {
		log.Warn().Err(err).Str("live_session_id", id).Msg("publish snapshot failed")
	}
}

func decodeRecord(fields, participants map[string]string) (LiveSession, error) {
	doc := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		doc[k] = json.RawMessage(v)
	}
	rawParticipants, err := json.Marshal(participants)
	if err != nil {
		return LiveSession{}, err
	}
	doc["participants"] = rawParticipants

	raw, err := json.Marshal(doc)
	if err != nil {
		return LiveSession{}, err
	}
	var session LiveSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return LiveSession{}, fmt.Errorf("decode live session: %w", err)
	}
	return session, nil
}
