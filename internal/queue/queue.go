// Package queue holds the FIFO of preview jobs waiting for the worker.
// Delivery is at most once: a popped job is never handed out again.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ottie/internal/config"
)

// ErrClosed is returned by operations on a queue after Shutdown.
var ErrClosed = errors.New("queue is shut down")

// Job is the queue entry for one preview. It lives only in the queue.
type Job struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue is a position-tracked FIFO with a single processing slot.
type Queue interface {
	Init(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// Push appends job and returns its 1-based position. Pushing an id
	// that is already queued returns its current position.
	Push(ctx context.Context, job Job) (int, error)
	// Peek returns the head without removing it, or nil when empty.
	Peek(ctx context.Context) (*Job, error)
	// Pop removes the head and marks it as processing, or returns nil
	// when empty.
	Pop(ctx context.Context) (*Job, error)
	// Position returns the 1-based rank of id among queued jobs; ok is
	// false once the job has been popped or was never pushed.
	Position(ctx context.Context, id uuid.UUID) (pos int, ok bool, err error)
	Len(ctx context.Context) (int, error)

	// Processing returns the id the worker is currently running.
	Processing(ctx context.Context) (uuid.UUID, bool, error)
	// Done clears the processing slot if it still holds id.
	Done(ctx context.Context, id uuid.UUID) error
}

// FromConfig builds the backend selected by cfg.Queue.Backend.
func FromConfig(cfg *config.Config) (Queue, error) {
	switch cfg.Queue.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis queue backend needs redis.url")
		}
		return NewRedisFromURL(cfg.Redis.URL, cfg.Queue.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
