package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"ottie/internal/config"
)

type fakeSweeper struct {
	calls int
	n     int
	err   error
}

func (f *fakeSweeper) Sweep(context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

type fakeRetentionStore struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakeRetentionStore) DeleteExpiredPreviews(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestRunnerTick(t *testing.T) {
	sw := &fakeSweeper{n: 2}
	r := NewRunner(&config.Config{}, sw, nil, nil)
	r.Tick(context.Background())
	if sw.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", sw.calls)
	}

	sw.err = errors.New("boom")
	r.Tick(context.Background())
	if sw.calls != 2 {
		t.Fatalf("expected sweep errors to be absorbed, got %d calls", sw.calls)
	}
}

func TestRunnerStart_StopsOnCancel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Worker.PollIntervalMs = 5
	sw := &fakeSweeper{}
	r := NewRunner(cfg, sw, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

func TestCleanupExpiredData(t *testing.T) {
	st := &fakeRetentionStore{n: 4}

	cfg := &config.Config{}
	if stats, err := CleanupExpiredData(context.Background(), cfg, st); err != nil || stats.PreviewsDeleted != 0 {
		t.Fatalf("expected no deletion without previewDays, got %+v (%v)", stats, err)
	}

	cfg.Retention.PreviewDays = 7
	stats, err := CleanupExpiredData(context.Background(), cfg, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PreviewsDeleted != 4 {
		t.Fatalf("PreviewsDeleted = %d, want 4", stats.PreviewsDeleted)
	}
	if age := time.Since(st.cutoff); age < 7*24*time.Hour-time.Minute {
		t.Fatalf("cutoff too recent: %v", st.cutoff)
	}
}

func TestRunnerCleanup_LogsFailure(t *testing.T) {
	cfg := &config.Config{}
	cfg.Retention.PreviewDays = 7
	st := &fakeRetentionStore{err: errors.New("connection refused")}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewRunner(cfg, nil, st, logger)
	r.Cleanup(context.Background())

	out := buf.String()
	if !strings.Contains(out, "retention_failed") || !strings.Contains(out, "connection refused") {
		t.Fatalf("expected retention_failed warning, got %q", out)
	}
}
