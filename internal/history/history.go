package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"backend-stoperica/internal/kvstore"
	"backend-stoperica/internal/session"

	"github.com/rs/zerolog/log"
)

const (
	SessionsNamespace = "StopericaSessions"
	SessionsKey       = "sessions"
	FailedNamespace   = "FailedSessions"
	FailedKey         = "failed_sessions"
)

var ErrSessionNotFound = errors.New("session not found")

// Remote mirrors history changes to the archive. Calls are fire-and-forget.
type Remote interface {
	Upload(s session.Session)
	Delete(id, username string)
}

type Store struct {
	kv     *kvstore.Store
	remote Remote
	mu     sync.Mutex
}

func NewStore(kv *kvstore.Store) *Store {
	return &Store{kv: kv}
}

// SetRemote attaches the archive client used by Rename and Delete.
func (s *Store) SetRemote(r Remote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = r
}

// List returns the stored sessions in save order. A value that no longer
// decodes is treated as an empty history.
func (s *Store) List(ctx context.Context) ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return session.Session{}, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return session.Session{}, ErrSessionNotFound
}

// Save appends sess unless a stored session already has the same laps and
// sectors. It reports whether the session was written.
func (s *Store) Save(ctx context.Context, sess session.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	for _, existing := range sessions {
		if session.SameTimes(existing, sess) {
			log.Debug().Str("session_id", existing.ID).Msg("identical session already stored")
			return false, nil
		}
	}
	sess.Normalize()
	sessions = append(sessions, sess)
	if err := s.storeLocked(ctx, sessions); err != nil {
		return false, err
	}
	log.Info().Str("session_id", sess.ID).Str("name", sess.Name).Int("laps", len(sess.Laps)).Msg("session saved")
	return true, nil
}

func (s *Store) Rename(ctx context.Context, id, name string) (session.Session, error) {
	updated, err := s.update(ctx, id, func(sess *session.Session) { sess.Name = name })
	if err != nil {
		return session.Session{}, err
	}
	if r := s.getRemote(); r != nil {
		r.Upload(updated)
	}
	return updated, nil
}

func (s *Store) MarkUploaded(ctx context.Context, id string) error {
	_, err := s.update(ctx, id, func(sess *session.Session) {
		sess.IsUploaded = true
		sess.UploadError = nil
	})
	return err
}

// MarkFailed records the last upload error on the stored session, if present.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := s.update(ctx, id, func(sess *session.Session) {
		sess.IsUploaded = false
		sess.UploadError = &reason
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// Delete removes the session locally and asks the archive to drop it too.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sessions, err := s.loadLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	idx := -1
	for i, sess := range sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	removed := sessions[idx]
	sessions = append(sessions[:idx], sessions[idx+1:]...)
	err = s.storeLocked(ctx, sessions)
	remote := s.remote
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if remote != nil {
		remote.Delete(removed.ID, removed.Username)
	}
	return nil
}

// AddFailed queues sess for a later upload retry.
func (s *Store) AddFailed(ctx context.Context, sess session.Session) error {
	sess.Normalize()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode failed session: %w", err)
	}
	return s.kv.AddToSet(ctx, FailedNamespace, FailedKey, string(raw))
}

// TakeFailed empties the retry queue and returns what it held. Entries that
// no longer decode are dropped.
func (s *Store) TakeFailed(ctx context.Context) ([]session.Session, error) {
	members, err := s.kv.TakeSet(ctx, FailedNamespace, FailedKey)
	if err != nil {
		return nil, err
	}
	out := make([]session.Session, 0, len(members))
	for _, m := range members {
		var sess session.Session
		if err := json.Unmarshal([]byte(m), &sess); err != nil {
			log.Warn().Err(err).Msg("dropping undecodable failed upload")
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) PendingFailed(ctx context.Context) (int, error) {
	members, err := s.kv.Members(ctx, FailedNamespace, FailedKey)
	return len(members), err
}

func (s *Store) update(ctx context.Context, id string, fn func(*session.Session)) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadLocked(ctx)
	if err != nil {
		return session.Session{}, err
	}
	for i := range sessions {
		if sessions[i].ID != id {
			continue
		}
		fn(&sessions[i])
		if err := s.storeLocked(ctx, sessions); err != nil {
			return session.Session{}, err
		}
		return sessions[i], nil
	}
	return session.Session{}, ErrSessionNotFound
}

func (s *Store) getRemote() Remote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *Store) loadLocked(ctx context.Context) ([]session.Session, error) {
	raw, ok, err := s.kv.Get(ctx, SessionsNamespace, SessionsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []session.Session{}, nil
	}
	var sessions []session.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		log.Warn().Err(err).Msg("stored sessions unreadable, starting empty")
		return []session.Session{}, nil
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return sessions, nil
}

func (s *Store) storeLocked(ctx context.Context, sessions []session.Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	return s.kv.Put(ctx, SessionsNamespace, SessionsKey, string(raw))
}
