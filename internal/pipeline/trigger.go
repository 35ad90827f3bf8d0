package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ottie/internal/metrics"
)

// InternalTokenHeader carries the shared secret on internal requests.
const InternalTokenHeader = "X-Internal-Token"

// HTTPTrigger wakes a worker running in another process by POSTing to its
// internal trigger endpoint. Failures are logged and counted; the queued
// job stays in the queue for the sweep.
type HTTPTrigger struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPTrigger(url, token string, logger *slog.Logger) *HTTPTrigger {
	return &HTTPTrigger{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Trigger fires the request in the background and returns at once.
func (t *HTTPTrigger) Trigger() {
	go func() {
		if err := t.Send(context.Background()); err != nil {
			metrics.RecordTriggerFailure()
			if t.logger != nil {
				t.logger.Warn("worker_trigger_failed", "url", t.url, "error", err)
			}
		}
	}()
}

// Send performs one trigger request and waits for the response.
func (t *HTTPTrigger) Send(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(InternalTokenHeader, t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("trigger returned status %d", resp.StatusCode)
	}
	return nil
}
