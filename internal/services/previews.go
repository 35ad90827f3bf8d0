package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"ottie/internal/jobs"
	"ottie/internal/metrics"
	"ottie/internal/model"
	"ottie/internal/pipeline"
	"ottie/internal/queue"
	"ottie/internal/scraper"
	"ottie/internal/sites"
	"ottie/internal/store"
)

// StageRunner re-runs single pipeline stages from stored data.
// *pipeline.Worker implements it.
type StageRunner interface {
	ReextractStructured(ctx context.Context, id uuid.UUID) (*model.Preview, error)
	RecleanHTML(ctx context.Context, id uuid.UUID) (*model.Preview, error)
	ReextractGallery(ctx context.Context, id uuid.UUID) (*model.Preview, error)
	RerunCall1(ctx context.Context, id uuid.UUID) (*model.Preview, error)
	RerunCall2(ctx context.Context, id uuid.UUID) (*model.Preview, error)
	Regenerate(ctx context.Context, id uuid.UUID) (*model.Preview, error)
}

// GenerateResult is returned by a successful submission.
type GenerateResult struct {
	PreviewID     uuid.UUID `json:"previewId"`
	QueuePosition int       `json:"queuePosition"`
}

// StatusResult is one cold read of a preview's progress.
type StatusResult struct {
	Status        model.Status `json:"status"`
	Phase         jobs.Phase   `json:"phase"`
	QueuePosition *int         `json:"queuePosition"`
	Processing    bool         `json:"processing"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
}

// Previews is the submission, status, claim and debug surface over the
// store and queue.
type Previews struct {
	store    store.Store
	queue    queue.Queue
	scrapers *scraper.Registry
	sites    *sites.Registry
	stages   StageRunner
	trigger  pipeline.Triggerer
	logger   *slog.Logger

	newID func() (uuid.UUID, error)
	now   func() time.Time
}

func NewPreviews(st store.Store, q queue.Queue, scrapers *scraper.Registry, siteReg *sites.Registry, stages StageRunner, trigger pipeline.Triggerer, logger *slog.Logger) *Previews {
	return &Previews{
		store:    st,
		queue:    q,
		scrapers: scrapers,
		sites:    siteReg,
		stages:   stages,
		trigger:  trigger,
		logger:   logger,
		newID:    uuid.NewV7,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Previews) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Previews) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, userErr("A listing URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, userErr("The listing URL is not a valid URL", errors.Join(ErrInvalidURL, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, userErr("The listing URL must start with http:// or https://", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, userErr("The listing URL has no host", ErrInvalidURL)
	}
	return u, nil
}

// Generate validates rawURL, checks the provider that would serve it is
// configured, creates the record and enqueues it. Nothing is written when
// validation or the credential check fails.
func (s *Previews) Generate(ctx context.Context, rawURL string) (*GenerateResult, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	pageURL := u.String()

	interactive := len(sites.GalleryActions(s.sites.LookupURL(pageURL))) > 0
	if err := s.scrapers.CheckCredentials(pageURL, interactive); err != nil {
		msg := "The scraping service for this website is not configured"
		var se *scraper.ScrapeError
		if errors.As(err, &se) && se.Message != "" {
			msg = se.Message
		}
		return nil, userErr(msg, err)
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	p, err := s.store.CreatePreview(ctx, id, pageURL)
	if err != nil {
		return nil, userErr("Could not create the preview, please try again", err)
	}

	pos, err := s.queue.Push(ctx, queue.Job{ID: id, URL: pageURL, CreatedAt: p.CreatedAt})
	if err != nil {
		s.logWarn("preview_enqueue_failed", "preview_id", id.String(), "error", err)
		if ferr := s.store.Fail(context.WithoutCancel(ctx), id, "The preview could not be queued"); ferr != nil {
			s.logWarn("preview_fail_write_failed", "preview_id", id.String(), "error", ferr)
		}
		return nil, userErr("Failed to queue the preview, please try again", err)
	}

	if depth, err := s.queue.Len(ctx); err == nil {
		metrics.SetQueueDepth(depth)
	}
	s.logInfo("preview_enqueued", "preview_id", id.String(), "url", pageURL, "queue_position", pos)
	if s.trigger != nil {
		s.trigger.Trigger()
	}
	return &GenerateResult{PreviewID: id, QueuePosition: pos}, nil
}

// Status reads the record and the queue and derives the phase. Queue read
// failures degrade to "not in queue" rather than failing the poll.
func (s *Previews) Status(ctx context.Context, id uuid.UUID) (*StatusResult, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	pos, inQueue, err := s.queue.Position(ctx, id)
	if err != nil {
		s.logWarn("queue_position_failed", "preview_id", id.String(), "error", err)
		inQueue = false
	}
	processingID, busy, err := s.queue.Processing(ctx)
	if err != nil {
		s.logWarn("queue_processing_failed", "preview_id", id.String(), "error", err)
		busy = false
	}
	processing := busy && processingID == id

	res := &StatusResult{
		Status:       p.Status,
		Processing:   processing,
		ErrorMessage: p.ErrorMessage,
	}
	if inQueue {
		res.QueuePosition = &pos
	} else {
		pos = 0
	}
	res.Phase = jobs.DerivePhase(jobs.PhaseInputFor(p, pos, processing))
	return res, nil
}

// Debug operation names accepted by RunStage.
const (
	StepReextractStructured = "reextract-structured"
	StepRecleanHTML         = "reclean-html"
	StepReextractGallery    = "reextract-gallery"
	StepRerunCall1          = "rerun-call1"
	StepRerunCall2          = "rerun-call2"
	StepRegenerate          = "regenerate"
)

// Steps lists the debug operations in pipeline order.
var Steps = []string{
	StepReextractStructured,
	StepRecleanHTML,
	StepReextractGallery,
	StepRerunCall1,
	StepRerunCall2,
	StepRegenerate,
}

// RunStage runs one manual debug operation and returns the updated
// record.
func (s *Previews) RunStage(ctx context.Context, id uuid.UUID, step string) (*model.Preview, error) {
	if s.stages == nil {
		return nil, userErr("Stage re-runs are not available on this node", ErrUnknownStep)
	}
	var run func(context.Context, uuid.UUID) (*model.Preview, error)
	switch step {
	case StepReextractStructured:
		run = s.stages.ReextractStructured
	case StepRecleanHTML:
		run = s.stages.RecleanHTML
	case StepReextractGallery:
		run = s.stages.ReextractGallery
	case StepRerunCall1:
		run = s.stages.RerunCall1
	case StepRerunCall2:
		run = s.stages.RerunCall2
	case StepRegenerate:
		run = s.stages.Regenerate
	default:
		return nil, userErr("Unknown debug operation: "+step, ErrUnknownStep)
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkIdle(ctx, current); err != nil {
		return nil, err
	}
	p, err := run(ctx, id)
	if err != nil {
		return nil, stageUserErr(ctx, s, id, err)
	}
	s.logInfo("preview_stage_rerun", "preview_id", id.String(), "step", step, "status", p.Status)
	return p, nil
}

// checkIdle refuses re-runs on records a worker may still be writing:
// records waiting in the queue or being scraped, and the record in the
// queue's processing slot. The slot is shared by every node, so this also
// covers a worker running in another process.
func (s *Previews) checkIdle(ctx context.Context, p *model.Preview) error {
	if p.Status == model.StatusQueued || p.Status == model.StatusScraping {
		return userErr("This preview is still being processed", store.ErrInvalidTransition)
	}
	processingID, busy, err := s.queue.Processing(ctx)
	if err != nil {
		return fmt.Errorf("read processing slot: %w", err)
	}
	if busy && processingID == p.ID {
		return userErr("This preview is still being processed", store.ErrInvalidTransition)
	}
	return nil
}

// stageUserErr maps a re-run failure to its user-facing message. LLM and
// persistence failures have already been written to the record.
func stageUserErr(ctx context.Context, s *Previews, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return userErr("Preview not found", ErrNotFound)
	case errors.Is(err, store.ErrInvalidTransition):
		return userErr("This preview is still being processed", err)
	}
	if pipeline.IsMissingInput(err) {
		return userErr(pipeline.UserMessage(err), err)
	}
	if p, gerr := s.store.GetPreview(ctx, id); gerr == nil && p.ErrorMessage != "" {
		return userErr(p.ErrorMessage, err)
	}
	return userErr("The operation failed, please try again", err)
}

func (s *Previews) load(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	p, err := s.store.GetPreview(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, userErr("Preview not found", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
