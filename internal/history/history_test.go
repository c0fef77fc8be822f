package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"backend-stoperica/internal/kvstore"
	"backend-stoperica/internal/session"
)

type fakeRemote struct {
	mu       sync.Mutex
	uploaded []session.Session
	deleted  []string
}

func (f *fakeRemote) Upload(s session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, s)
}

func (f *fakeRemote) Delete(id, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id+"/"+username)
}

func newStore(t *testing.T) (*Store, *kvstore.Store) {
	t.Helper()
	kv, err := kvstore.Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return NewStore(kv), kv
}

func sample(id string, laps ...string) session.Session {
	sectors := make([][]string, len(laps))
	for i := range sectors {
		sectors[i] = []string{}
	}
	return session.Session{ID: id, Name: "Session " + id, Username: "ana", Laps: laps, Sectors: sectors}
}

func TestSaveAndList(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	list, err := s.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty history, got %v %v", list, err)
	}

	saved, err := s.Save(ctx, sample("1", "Lap 1: 00:30:00"))
	if err != nil || !saved {
		t.Fatalf("save: %v %v", saved, err)
	}
	_, _ = s.Save(ctx, sample("2", "Lap 1: 00:31:00"))

	list, _ = s.List(ctx)
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "2" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestSaveSkipsIdenticalTimes(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, _ = s.Save(ctx, sample("1", "Lap 1: 00:30:00", "Lap 2: 00:28:50"))
	saved, err := s.Save(ctx, sample("2", "Lap 1: 00:30:00", "Lap 2: 00:28:50"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved {
		t.Fatalf("duplicate should not be saved")
	}
	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Fatalf("expected one stored session, got %d", len(list))
	}
}

func TestUndecodableHistoryFallsBackToEmpty(t *testing.T) {
	s, kv := newStore(t)
	ctx := context.Background()
	if err := kv.Put(ctx, SessionsNamespace, SessionsKey, `{"not":"a list"`); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty fallback, got %v %v", list, err)
	}
	if saved, err := s.Save(ctx, sample("1", "Lap 1: 00:30:00")); err != nil || !saved {
		t.Fatalf("save after corruption: %v %v", saved, err)
	}
}

func TestRenameReuploads(t *testing.T) {
	s, _ := newStore(t)
	remote := &fakeRemote{}
	s.SetRemote(remote)
	ctx := context.Background()
	_, _ = s.Save(ctx, sample("1", "Lap 1: 00:30:00"))

	updated, err := s.Rename(ctx, "1", "Sunday practice")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if updated.Name != "Sunday practice" {
		t.Fatalf("unexpected name %q", updated.Name)
	}
	got, _ := s.Get(ctx, "1")
	if got.Name != "Sunday practice" {
		t.Fatalf("rename not persisted")
	}
	if len(remote.uploaded) != 1 || remote.uploaded[0].Name != "Sunday practice" {
		t.Fatalf("expected one re-upload, got %+v", remote.uploaded)
	}

	if _, err := s.Rename(ctx, "missing", "x"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteRemovesLocallyAndRemotely(t *testing.T) {
	s, _ := newStore(t)
	remote := &fakeRemote{}
	s.SetRemote(remote)
	ctx := context.Background()
	_, _ = s.Save(ctx, sample("1", "Lap 1: 00:30:00"))
	_, _ = s.Save(ctx, sample("2", "Lap 1: 00:31:00"))

	if err := s.Delete(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ID != "2" {
		t.Fatalf("unexpected remaining %+v", list)
	}
	if len(remote.deleted) != 1 || remote.deleted[0] != "1/ana" {
		t.Fatalf("unexpected remote deletes %v", remote.deleted)
	}
	if err := s.Delete(ctx, "1"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUploadStateTransitions(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_, _ = s.Save(ctx, sample("1", "Lap 1: 00:30:00"))

	if err := s.MarkFailed(ctx, "1", "status 500"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := s.Get(ctx, "1")
	if got.IsUploaded || got.UploadError == nil || *got.UploadError != "status 500" {
		t.Fatalf("unexpected failed state %+v", got)
	}

	if err := s.MarkUploaded(ctx, "1"); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	got, _ = s.Get(ctx, "1")
	if !got.IsUploaded || got.UploadError != nil {
		t.Fatalf("unexpected uploaded state %+v", got)
	}

	if err := s.MarkFailed(ctx, "gone", "x"); err != nil {
		t.Fatalf("unknown sessions should be ignored, got %v", err)
	}
}

func TestFailedQueueTakenWholesale(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a := sample("1", "Lap 1: 00:30:00")
	_ = s.AddFailed(ctx, a)
	_ = s.AddFailed(ctx, a)
	_ = s.AddFailed(ctx, sample("2", "Lap 1: 00:31:00"))

	if n, _ := s.PendingFailed(ctx); n != 2 {
		t.Fatalf("identical entries should collapse, got %d", n)
	}
	taken, err := s.TakeFailed(ctx)
	if err != nil || len(taken) != 2 || taken[0].ID != "1" {
		t.Fatalf("unexpected take %+v %v", taken, err)
	}
	if n, _ := s.PendingFailed(ctx); n != 0 {
		t.Fatalf("queue should be empty, got %d", n)
	}
}
