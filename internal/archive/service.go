// Package archive is the server side of session uploads: finished sessions
// are upserted into Postgres keyed by id and owned by their username.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-stoperica/internal/db"
	"backend-stoperica/internal/session"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrForbidden = errors.New("session belongs to another user")
	ErrInvalid   = errors.New("session id and username required")
	// ErrUnavailable is returned while the server runs without Postgres.
	ErrUnavailable = errors.New("session archive unavailable")
)

const schema = `
CREATE TABLE IF NOT EXISTS stopwatch_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	username   TEXT NOT NULL,
	name       TEXT NOT NULL,
	date_time  TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS stopwatch_sessions_username_idx ON stopwatch_sessions (username, date_time DESC);
`

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return ErrUnavailable
	}
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Record is an archived session plus its server bookkeeping.
type Record struct {
	Session   session.Session `json:"session"`
	UserID    string          `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Upsert stores a new session or replaces an existing one with the same id.
// Replacing is only allowed for the same username; renames arrive this way.
func (s *Service) Upsert(ctx context.Context, userID string, sess session.Session) (Record, error) {
	if s.db == nil {
		return Record{}, ErrUnavailable
	}
	if sess.ID == "" || sess.Username == "" {
		return Record{}, ErrInvalid
	}
	sess.Normalize()
	sess.IsUploaded = true
	sess.UploadError = nil
	payload, err := json.Marshal(sess)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Session: sess, UserID: userID}
	row := s.db.QueryRow(ctx, `
		INSERT INTO stopwatch_sessions (id, user_id, username, name, date_time, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, date_time = EXCLUDED.date_time, payload = EXCLUDED.payload, updated_at = now()
		WHERE stopwatch_sessions.username = EXCLUDED.username
		RETURNING created_at, updated_at
	`, sess.ID, userID, sess.Username, sess.Name, sess.DateTime, payload)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrForbidden
		}
		return Record{}, err
	}
	return rec, nil
}

// Delete removes a session when username matches its owner.
func (s *Service) Delete(ctx context.Context, id, username string) error {
	if s.db == nil {
		return ErrUnavailable
	}
	var owner string
	err := s.db.QueryRow(ctx, `SELECT username FROM stopwatch_sessions WHERE id=$1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != username {
		return ErrForbidden
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM stopwatch_sessions WHERE id=$1 AND username=$2`, id, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (session.Session, error) {
	if s.db == nil {
		return session.Session{}, ErrUnavailable
	}
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT payload FROM stopwatch_sessions WHERE id=$1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	return decode(payload)
}

// ListByUsername returns a user's sessions, newest first.
func (s *Service) ListByUsername(ctx context.Context, username string) ([]session.Session, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.db.Query(ctx, `
		SELECT payload FROM stopwatch_sessions
		WHERE username=$1
		ORDER BY date_time DESC
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []session.Session{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		sess, err := decode(payload)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func decode(payload []byte) (session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode archived session: %w", err)
	}
	sess.Normalize()
	return sess, nil
}
