package pipeline

import (
	"context"
	"time"

	"ottie/internal/model"
	"ottie/internal/queue"
)

// sweepGrace keeps the sweep away from records that are between being
// created and being pushed.
const sweepGrace = 10 * time.Second

// Sweep re-enqueues queued records that are missing from the queue, for
// example after a lost trigger or a restart of a memory-backed queue.
// Records stuck in scraping or pending past worker.stuckAfterMs are only
// logged; whether to restart or resume them is left to an operator.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	now := w.now()
	limit := w.cfg.Worker.SweepLimit

	queued, err := w.store.ListByStatus(ctx, []model.Status{model.StatusQueued}, now.Add(-sweepGrace), limit)
	if err != nil {
		return 0, err
	}

	processing, busy, err := w.queue.Processing(ctx)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, p := range queued {
		if busy && processing == p.ID {
			continue
		}
		if _, ok, err := w.queue.Position(ctx, p.ID); err != nil {
			return requeued, err
		} else if ok {
			continue
		}
		pos, err := w.queue.Push(ctx, queue.Job{ID: p.ID, URL: p.ExternalURL, CreatedAt: p.CreatedAt})
		if err != nil {
			return requeued, err
		}
		requeued++
		w.logInfo("preview_requeued", "preview_id", p.ID.String(), "queue_position", pos)
	}

	if stuckAfter := time.Duration(w.cfg.Worker.StuckAfterMs) * time.Millisecond; stuckAfter > 0 {
		stuck, err := w.store.ListByStatus(ctx,
			[]model.Status{model.StatusScraping, model.StatusPending},
			now.Add(-stuckAfter), limit)
		if err != nil {
			return requeued, err
		}
		for _, p := range stuck {
			if busy && processing == p.ID {
				continue
			}
			w.logWarn("preview_stuck",
				"preview_id", p.ID.String(),
				"status", p.Status,
				"updated_at", p.UpdatedAt,
			)
		}
	}

	if requeued > 0 {
		w.Trigger()
	}
	return requeued, nil
}
