package upload

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backend-stoperica/internal/session"

	"github.com/gofiber/fiber/v2"
)

type memLedger struct {
	mu       sync.Mutex
	uploaded []string
	failed   []session.Session
	errors   map[string]string
}

func newMemLedger() *memLedger {
	return &memLedger{errors: map[string]string{}}
}

func (m *memLedger) MarkUploaded(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded = append(m.uploaded, id)
	return nil
}

func (m *memLedger) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[id] = reason
	return nil
}

func (m *memLedger) AddFailed(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, s)
	return nil
}

func (m *memLedger) TakeFailed(_ context.Context) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.failed
	m.failed = nil
	return out, nil
}

func (m *memLedger) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploaded), len(m.failed)
}

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

type archiveStub struct {
	status   atomic.Int32
	received chan session.Session
	deletes  chan string
	release  chan struct{}
}

func newArchiveStub(t *testing.T) (*archiveStub, string) {
	stub := &archiveStub{
		received: make(chan session.Session, 16),
		deletes:  make(chan string, 16),
	}
	stub.status.Store(fiber.StatusOK)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(int(stub.status.Load()))
	})
	app.Post("/upload", func(c *fiber.Ctx) error {
		if stub.release != nil {
			<-stub.release
		}
		var s session.Session
		if err := c.BodyParser(&s); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		stub.received <- s
		return c.SendStatus(int(stub.status.Load()))
	})
	app.Delete("/delete-session/:id", func(c *fiber.Ctx) error {
		stub.deletes <- c.Params("id") + "/" + c.Get("Username")
		return c.SendStatus(fiber.StatusOK)
	})
	return stub, serve(t, app)
}

func TestUploadSuccessMarksUploaded(t *testing.T) {
	stub, base := newArchiveStub(t)
	ledger := newMemLedger()
	u := NewUploader(NewClient(base), ledger)

	u.Upload(session.Session{ID: "s1", Name: "Session 1", Laps: []string{"Lap 1: 00:30:00"}})
	u.Wait()

	select {
	case got := <-stub.received:
		if got.ID != "s1" || len(got.Laps) != 1 {
			t.Fatalf("unexpected upload body %+v", got)
		}
	default:
		t.Fatalf("archive did not receive the session")
	}
	if up, failed := ledger.counts(); up != 1 || failed != 0 {
		t.Fatalf("unexpected ledger state uploaded=%d failed=%d", up, failed)
	}
}

func TestUploadFailureQueuesRetry(t *testing.T) {
	stub, base := newArchiveStub(t)
	stub.status.Store(fiber.StatusInternalServerError)
	ledger := newMemLedger()
	u := NewUploader(NewClient(base), ledger)

	if err := u.UploadNow(context.Background(), session.Session{ID: "s1"}); err == nil {
		t.Fatalf("expected upload error")
	}
	if up, failed := ledger.counts(); up != 0 || failed != 1 {
		t.Fatalf("unexpected ledger state uploaded=%d failed=%d", up, failed)
	}
	if ledger.errors["s1"] == "" {
		t.Fatalf("upload error not recorded")
	}
}

func TestUploadTransportErrorQueuesRetry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ledger := newMemLedger()
	client := NewClient("http://" + addr)
	client.SetTimeout(time.Second)
	u := NewUploader(client, ledger)

	if err := u.UploadNow(context.Background(), session.Session{ID: "s1"}); err == nil {
		t.Fatalf("expected transport error")
	}
	if _, failed := ledger.counts(); failed != 1 {
		t.Fatalf("expected queued retry, got %d", failed)
	}
}

func TestOnlyOneUploadInFlight(t *testing.T) {
	stub, base := newArchiveStub(t)
	stub.release = make(chan struct{})
	ledger := newMemLedger()
	u := NewUploader(NewClient(base), ledger)

	u.Upload(session.Session{ID: "first"})
	u.Upload(session.Session{ID: "second"})
	if err := u.UploadNow(context.Background(), session.Session{ID: "third"}); err != ErrUploadInFlight {
		t.Fatalf("expected ErrUploadInFlight, got %v", err)
	}
	if _, err := u.RetryFailed(context.Background()); err != ErrUploadInFlight {
		t.Fatalf("expected ErrUploadInFlight from retry, got %v", err)
	}
	close(stub.release)
	u.Wait()

	if got := len(stub.received); got != 1 {
		t.Fatalf("expected exactly one upload, got %d", got)
	}
	if got := <-stub.received; got.ID != "first" {
		t.Fatalf("unexpected session uploaded %q", got.ID)
	}
}

func TestRetryFailedDrainsQueue(t *testing.T) {
	stub, base := newArchiveStub(t)
	ledger := newMemLedger()
	ledger.failed = []session.Session{{ID: "a"}, {ID: "b"}}
	u := NewUploader(NewClient(base), ledger)

	n, err := u.RetryFailed(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("unexpected retry result %d %v", n, err)
	}
	if len(stub.received) != 2 {
		t.Fatalf("expected two uploads, got %d", len(stub.received))
	}
	if up, failed := ledger.counts(); up != 2 || failed != 0 {
		t.Fatalf("unexpected ledger state uploaded=%d failed=%d", up, failed)
	}
}

func TestRetryFailedRequeuesStillFailing(t *testing.T) {
	stub, base := newArchiveStub(t)
	stub.status.Store(fiber.StatusBadGateway)
	ledger := newMemLedger()
	ledger.failed = []session.Session{{ID: "a"}}
	u := NewUploader(NewClient(base), ledger)

	n, err := u.RetryFailed(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("unexpected retry result %d %v", n, err)
	}
	if _, failed := ledger.counts(); failed != 1 {
		t.Fatalf("failing entry should be queued again, got %d", failed)
	}
}

func TestDeleteSendsUsernameHeader(t *testing.T) {
	stub, base := newArchiveStub(t)
	u := NewUploader(NewClient(base), newMemLedger())

	u.Delete("abc-123", "ana")
	u.Wait()

	select {
	case got := <-stub.deletes:
		if got != "abc-123/ana" {
			t.Fatalf("unexpected delete %q", got)
		}
	default:
		t.Fatalf("delete not received")
	}
}
