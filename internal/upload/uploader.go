package upload

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"

	"backend-stoperica/internal/session"

	"github.com/rs/zerolog/log"
)

const (
	UploadPath = "/upload"
	DeletePath = "/delete-session/"
)

var ErrUploadInFlight = errors.New("upload already in progress")

// Ledger is the local record of upload outcomes.
type Ledger interface {
	MarkUploaded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	AddFailed(ctx context.Context, s session.Session) error
	TakeFailed(ctx context.Context) ([]session.Session, error)
}

// Uploader pushes sessions to the archive in the background. At most one
// upload runs at a time; triggers arriving meanwhile are dropped.
type Uploader struct {
	client   *Client
	ledger   Ledger
	inFlight atomic.Bool
	wg       sync.WaitGroup
}

func NewUploader(client *Client, ledger Ledger) *Uploader {
	return &Uploader{client: client, ledger: ledger}
}

// Upload sends s on a background goroutine. Failures land in the retry queue.
func (u *Uploader) Upload(s session.Session) {
	if !u.inFlight.CompareAndSwap(false, true) {
		log.Debug().Str("session_id", s.ID).Msg("upload already in progress, skipping")
		return
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer u.inFlight.Store(false)
		_ = u.send(context.Background(), s)
	}()
}

// UploadNow is the synchronous form of Upload.
func (u *Uploader) UploadNow(ctx context.Context, s session.Session) error {
	if !u.inFlight.CompareAndSwap(false, true) {
		return ErrUploadInFlight
	}
	defer u.inFlight.Store(false)
	return u.send(ctx, s)
}

// RetryFailed drains the retry queue and re-submits every entry in order.
// Entries that fail again are queued for the next retry.
func (u *Uploader) RetryFailed(ctx context.Context) (int, error) {
	if !u.inFlight.CompareAndSwap(false, true) {
		return 0, ErrUploadInFlight
	}
	defer u.inFlight.Store(false)

	pending, err := u.ledger.TakeFailed(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	log.Info().Int("count", len(pending)).Msg("retrying failed uploads")

	ok := 0
	for _, s := range pending {
		if err := u.send(ctx, s); err == nil {
			ok++
		}
	}
	return ok, nil
}

// Delete asks the archive to drop a session. Best effort; the result is only logged.
func (u *Uploader) Delete(id, username string) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		_ = u.DeleteNow(id, username)
	}()
}

func (u *Uploader) DeleteNow(id, username string) error {
	_, err := u.client.Delete(DeletePath+url.PathEscape(id), map[string]string{"Username": username})
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("failed to delete session from archive")
		return err
	}
	log.Info().Str("session_id", id).Msg("session deleted from archive")
	return nil
}

// Wait blocks until background uploads and deletes have finished.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

func (u *Uploader) send(ctx context.Context, s session.Session) error {
	s.Normalize()
	if _, err := u.client.Post(UploadPath, s); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to upload session")
		if qerr := u.ledger.AddFailed(ctx, s); qerr != nil {
			log.Error().Err(qerr).Str("session_id", s.ID).Msg("failed to queue session for retry")
		}
		if merr := u.ledger.MarkFailed(ctx, s.ID, err.Error()); merr != nil {
			log.Warn().Err(merr).Str("session_id", s.ID).Msg("failed to record upload error")
		}
		return err
	}

	log.Info().Str("session_id", s.ID).Msg("session uploaded")
	if err := u.ledger.MarkUploaded(ctx, s.ID); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to mark session uploaded")
	}
	return nil
}
