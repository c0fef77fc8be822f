// Package kvstore is a small namespaced key-value store on top of SQLite,
// holding plain string values and string sets.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
  namespace TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (namespace, key)
);
CREATE TABLE IF NOT EXISTS kv_set (
  namespace TEXT NOT NULL,
  key TEXT NOT NULL,
  member TEXT NOT NULL,
  PRIMARY KEY (namespace, key, member)
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create kv tables: %w", err)
	}
	return nil
}

// Get returns the value under namespace/key and whether it exists.
func (s *Store) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, namespace, key, value string) error {
	const stmt = `
INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value;
`
	if _, err := s.db.ExecContext(ctx, stmt, namespace, key, value); err != nil {
		return fmt.Errorf("put %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// AddToSet inserts member into the set; duplicates are ignored.
func (s *Store) AddToSet(ctx context.Context, namespace, key, member string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_set (namespace, key, member) VALUES (?, ?, ?)`,
		namespace, key, member,
	); err != nil {
		return fmt.Errorf("add to set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *Store) Members(ctx context.Context, namespace, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member FROM kv_set WHERE namespace = ? AND key = ? ORDER BY rowid`,
		namespace, key,
	)
	if err != nil {
		return nil, fmt.Errorf("list set %s/%s: %w", namespace, key, err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// TakeSet returns every member and removes the whole set in one transaction.
func (s *Store) TakeSet(ctx context.Context, namespace, key string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT member FROM kv_set WHERE namespace = ? AND key = ? ORDER BY rowid`,
		namespace, key,
	)
	if err != nil {
		return nil, fmt.Errorf("list set %s/%s: %w", namespace, key, err)
	}
	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			rows.Close()
			return nil, err
		}
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv_set WHERE namespace = ? AND key = ?`, namespace, key,
	); err != nil {
		return nil, fmt.Errorf("clear set %s/%s: %w", namespace, key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return members, nil
}
