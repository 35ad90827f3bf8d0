// Package store persists preview records and the sites claimed from them.
// Status changes go through the transition rules in package jobs; a
// write that would move a record backwards fails with
// ErrInvalidTransition and leaves the record untouched.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"ottie/internal/model"
)

var (
	ErrNotFound          = errors.New("preview not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCaptured is returned when a second scrape result is written for
	// a record that already holds one.
	ErrCaptured = errors.New("preview already has a capture")
	// ErrNotCompleted is returned when claiming a record that has not
	// finished generating.
	ErrNotCompleted = errors.New("preview is not completed")
)

// Store is the preview record store. The worker is the only writer
// during a job; status polling only reads.
type Store interface {
	Ping(ctx context.Context) error

	CreatePreview(ctx context.Context, id uuid.UUID, externalURL string) (*model.Preview, error)
	GetPreview(ctx context.Context, id uuid.UUID) (*model.Preview, error)

	// MarkScraping moves a queued record to scraping and records the
	// provider that will serve it and the claim time.
	MarkScraping(ctx context.Context, id uuid.UUID, sourceDomain string, claimedAt time.Time) error
	SaveCapture(ctx context.Context, id uuid.UUID, c model.Capture) error
	SaveGallery(ctx context.Context, id uuid.UUID, images []string) error
	SaveExtraction(ctx context.Context, id uuid.UUID, e model.Extraction) error
	MarkPending(ctx context.Context, id uuid.UUID) error

	// MarkCallStarted records the start of an LLM call. Starting Call 1
	// drops both configs; starting Call 2 drops the final config, so
	// metadata never outlives the output it describes.
	MarkCallStarted(ctx context.Context, id uuid.UUID, stage model.Stage, at time.Time) error
	SaveGeneratedConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) error
	SaveFinalConfig(ctx context.Context, id uuid.UUID, cfg json.RawMessage) error

	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	// Resume moves a pending, completed or errored record back to
	// pending for a manual stage re-run and clears its error message.
	Resume(ctx context.Context, id uuid.UUID) error

	// ListByStatus returns records in any of statuses, oldest first. A
	// non-zero updatedBefore keeps only records untouched since then.
	ListByStatus(ctx context.Context, statuses []model.Status, updatedBefore time.Time, limit int) ([]*model.Preview, error)
	// DeleteExpiredPreviews removes unclaimed records created before cutoff.
	DeleteExpiredPreviews(ctx context.Context, cutoff time.Time) (int64, error)

	// ClaimPreview turns a completed record into a site. Claiming an
	// already claimed record returns the existing site.
	ClaimPreview(ctx context.Context, site model.Site) (*model.Site, error)
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

func marshalImages(images []string) (json.RawMessage, error) {
	if images == nil {
		return nil, nil
	}
	return json.Marshal(images)
}

func unmarshalImages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	if out == nil {
		out = []string{}
	}
	return out
}
