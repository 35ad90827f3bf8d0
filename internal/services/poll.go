package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ottie/internal/jobs"
)

// PollOptions is the client-side polling policy. The server keeps working
// on the job whether or not anyone is polling.
type PollOptions struct {
	Interval     time.Duration
	ErrorBackoff time.Duration
	MaxAttempts  int
	// OnUpdate, when set, sees every successful read.
	OnUpdate func(*StatusResult)
}

// DefaultPollOptions polls every second, backs off to two seconds after
// a failed read, and gives up after 120 attempts.
func DefaultPollOptions() PollOptions {
	return PollOptions{Interval: time.Second, ErrorBackoff: 2 * time.Second, MaxAttempts: 120}
}

// StatusFunc reads one status snapshot.
type StatusFunc func(ctx context.Context, id uuid.UUID) (*StatusResult, error)

// PollStatus calls fetch until the preview reaches a terminal status, the
// attempt cap is hit (ErrPollTimeout) or ctx is done.
func PollStatus(ctx context.Context, id uuid.UUID, fetch StatusFunc, opts PollOptions) (*StatusResult, error) {
	def := DefaultPollOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = def.ErrorBackoff
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}

	var last *StatusResult
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		wait := opts.Interval
		res, err := fetch(ctx, id)
		if err != nil {
			if _, ok := AsUserError(err); ok {
				return nil, err
			}
			wait = opts.ErrorBackoff
		} else {
			last = res
			if opts.OnUpdate != nil {
				opts.OnUpdate(res)
			}
			if jobs.Terminal(res.Status) {
				return res, nil
			}
		}
		if attempt == opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
	return last, ErrPollTimeout
}
