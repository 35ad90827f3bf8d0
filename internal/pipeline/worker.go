// Package pipeline runs preview jobs: scrape, site cleaning, extraction,
// normalization and the two config generation calls. A single Worker
// drains the queue one job at a time.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ottie/internal/config"
	"ottie/internal/configgen"
	"ottie/internal/metrics"
	"ottie/internal/model"
	"ottie/internal/queue"
	"ottie/internal/scraper"
	"ottie/internal/sites"
	"ottie/internal/store"
)

// Triggerer wakes the worker without waiting for it.
type Triggerer interface {
	Trigger()
}

// Worker processes preview jobs strictly one at a time so provider rate
// limits are never hit by parallel scrapes.
type Worker struct {
	cfg      *config.Config
	store    store.Store
	queue    queue.Queue
	scrapers *scraper.Registry
	sites    *sites.Registry
	gen      *configgen.Generator
	logger   *slog.Logger

	// busy serializes Process and the manual stage re-runs.
	busy sync.Mutex
	wake chan struct{}
	now  func() time.Time
}

func NewWorker(cfg *config.Config, st store.Store, q queue.Queue, scrapers *scraper.Registry, siteReg *sites.Registry, gen *configgen.Generator, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		store:    st,
		queue:    q,
		scrapers: scrapers,
		sites:    siteReg,
		gen:      gen,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) logInfo(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Worker) logWarn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}

// Trigger wakes Run. It never blocks; wake-ups that arrive while one is
// already pending are merged.
func (w *Worker) Trigger() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue whenever it is triggered or the poll interval
// elapses, until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	pollInterval := time.Duration(w.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logInfo("worker_started", "poll_interval_ms", pollInterval.Milliseconds())
	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			w.logInfo("worker_stopped")
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

// Drain pops and processes jobs until the queue is empty and returns how
// many it ran.
func (w *Worker) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			w.logWarn("queue_pop_failed", "error", err)
			return n
		}
		if job == nil {
			metrics.SetQueueDepth(0)
			return n
		}

		w.Process(ctx, job.ID)
		if err := w.queue.Done(context.WithoutCancel(ctx), job.ID); err != nil {
			w.logWarn("queue_done_failed", "preview_id", job.ID.String(), "error", err)
		}
		n++

		if depth, err := w.queue.Len(ctx); err == nil {
			metrics.SetQueueDepth(depth)
		}
	}
	return n
}

// Process runs every stage for one queued record. Any stage error marks
// the record as error; nothing is retried.
func (w *Worker) Process(ctx context.Context, id uuid.UUID) {
	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		w.logWarn("preview_load_failed", "preview_id", id.String(), "error", err)
		return
	}
	if p.Status != model.StatusQueued {
		w.logInfo("preview_skipped", "preview_id", id.String(), "status", p.Status)
		return
	}

	w.busy.Lock()
	defer w.busy.Unlock()

	started := w.now()
	w.logInfo("preview_started", "preview_id", id.String(), "url", p.ExternalURL)

	if err := w.run(ctx, p); err != nil {
		w.fail(ctx, id, err)
		return
	}

	metrics.RecordPreviewOutcome(string(model.StatusCompleted))
	w.logInfo("preview_completed",
		"preview_id", id.String(),
		"source_domain", p.SourceDomain,
		"duration_ms", w.now().Sub(started).Milliseconds(),
	)
}

func (w *Worker) run(ctx context.Context, p *model.Preview) error {
	adapter := w.sites.LookupURL(p.ExternalURL)

	capture, err := w.scrape(ctx, p, adapter)
	if err != nil {
		return err
	}
	if err := w.extract(ctx, p, adapter, capture); err != nil {
		return err
	}
	if err := w.store.MarkPending(ctx, p.ID); err != nil {
		return stageErr(StagePersist, err)
	}
	return w.generate(ctx, p.ID)
}

// generate runs Call 1 then Call 2 and completes the record.
func (w *Worker) generate(ctx context.Context, id uuid.UUID) error {
	if err := w.call1(ctx, id); err != nil {
		return err
	}
	if err := w.call2(ctx, id); err != nil {
		return err
	}
	if err := w.store.Complete(ctx, id); err != nil {
		return stageErr(StagePersist, err)
	}
	return nil
}

// fail is the single place that writes status=error.
func (w *Worker) fail(ctx context.Context, id uuid.UUID, err error) {
	msg := UserMessage(err)
	stage := Stage("")
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}

	w.logWarn("preview_stage_failed",
		"preview_id", id.String(),
		"stage", stage,
		"error", err,
	)
	metrics.RecordPreviewOutcome(string(model.StatusError))

	if ferr := w.store.Fail(context.WithoutCancel(ctx), id, msg); ferr != nil {
		w.logWarn("preview_fail_write_failed", "preview_id", id.String(), "error", ferr)
	}
}

func (w *Worker) llmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.LLM.TimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(w.cfg.LLM.TimeoutMs)*time.Millisecond)
}
