package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-stoperica/internal/session"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func sampleSession() session.Session {
	return session.Session{
		ID:       "s-1",
		Name:     "Session 1",
		Username: "ana",
		DateTime: "2024-05-04 10:00:58",
		Laps:     []string{"Lap 1: 00:30:00", "Lap 2: 00:28:50"},
	}
}

func TestEnsureSchema(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS stopwatch_sessions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := NewService(mock).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertInsertsAndRenames(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO stopwatch_sessions`).
		WithArgs("s-1", "user-1", "ana", "Session 1", "2024-05-04 10:00:58", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	rec, err := svc.Upsert(context.Background(), "user-1", sampleSession())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !rec.Session.IsUploaded || rec.Session.Sectors == nil || rec.UserID != "user-1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	renamed := sampleSession()
	renamed.Name = "Morning"
	mock.ExpectQuery(`ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("s-1", "user-1", "ana", "Morning", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now.Add(time.Minute)))

	if _, err := svc.Upsert(context.Background(), "user-1", renamed); err != nil {
		t.Fatalf("rename upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertOtherOwner(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO stopwatch_sessions`).
		WithArgs("s-1", "user-2", "ana", "Session 1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	if _, err := NewService(mock).Upsert(context.Background(), "user-2", sampleSession()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUpsertRequiresIDAndUsername(t *testing.T) {
	svc := NewService(newMock(t))
	if _, err := svc.Upsert(context.Background(), "", session.Session{Username: "ana"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing id, got %v", err)
	}
	if _, err := svc.Upsert(context.Background(), "", session.Session{ID: "x"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for missing username, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name     string
		username string
		setup    func(pgxmock.PgxPoolIface)
		want     error
	}{
		{
			name:     "owner",
			username: "ana",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT username FROM stopwatch_sessions`).WithArgs("s-1").
					WillReturnRows(pgxmock.NewRows([]string{"username"}).AddRow("ana"))
				m.ExpectExec(`DELETE FROM stopwatch_sessions`).WithArgs("s-1", "ana").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
			},
		},
		{
			name:     "other user",
			username: "ivo",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT username FROM stopwatch_sessions`).WithArgs("s-1").
					WillReturnRows(pgxmock.NewRows([]string{"username"}).AddRow("ana"))
			},
			want: ErrForbidden,
		},
		{
			name:     "missing",
			username: "ana",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT username FROM stopwatch_sessions`).WithArgs("s-1").
					WillReturnError(pgx.ErrNoRows)
			},
			want: ErrNotFound,
		},
		{
			name:     "deleted concurrently",
			username: "ana",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT username FROM stopwatch_sessions`).WithArgs("s-1").
					WillReturnRows(pgxmock.NewRows([]string{"username"}).AddRow("ana"))
				m.ExpectExec(`DELETE FROM stopwatch_sessions`).WithArgs("s-1", "ana").
					WillReturnResult(pgxmock.NewResult("DELETE", 0))
			},
			want: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)
			err := NewService(mock).Delete(context.Background(), "s-1", tt.username)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestGetAndList(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT payload FROM stopwatch_sessions WHERE id=\$1`).WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow([]byte(`{"id":"s-1","name":"Session 1","username":"ana","laps":["Lap 1: 00:30:00"]}`)))

	got, err := svc.Get(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Session 1" || len(got.Laps) != 1 || got.Sectors == nil {
		t.Fatalf("unexpected session %+v", got)
	}

	mock.ExpectQuery(`SELECT payload FROM stopwatch_sessions WHERE id=\$1`).WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(`WHERE username=\$1`).WithArgs("ana").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"id":"s-2","username":"ana"}`)).
			AddRow([]byte(`{"id":"s-1","username":"ana"}`)))

	list, err := svc.ListByUsername(context.Background(), "ana")
	if err != nil || len(list) != 2 || list[0].ID != "s-2" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListEmptyIsNotNil(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`WHERE username=\$1`).WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	list, err := NewService(mock).ListByUsername(context.Background(), "nobody")
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
}

func TestServiceWithoutDatabase(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "u-1", sampleSession()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("upsert: expected ErrUnavailable, got %v", err)
	}
	if err := svc.Delete(ctx, "s-1", "ana"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("delete: expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.ListByUsername(ctx, "ana"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("list: expected ErrUnavailable, got %v", err)
	}
	if err := svc.EnsureSchema(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("schema: expected ErrUnavailable, got %v", err)
	}
}
