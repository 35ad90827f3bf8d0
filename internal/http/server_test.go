package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ottie/internal/config"
	"ottie/internal/pipeline"
	"ottie/internal/queue"
	"ottie/internal/scraper"
	"ottie/internal/services"
	"ottie/internal/sites"
	"ottie/internal/store"
)

type stubScraper struct{ name string }

func (s stubScraper) Name() string      { return s.name }
func (s stubScraper) Configured() error { return nil }
func (s stubScraper) Scrape(context.Context, scraper.Request) (*scraper.Result, error) {
	return nil, errors.New("not used")
}

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

func newTestServer(t *testing.T, cfg *config.Config, withWorker bool, rdb *redis.Client) (*Server, *countingTrigger) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	config.ApplyDefaults(cfg)

	st := store.NewMemory()
	q := queue.NewMemory()
	trig := &countingTrigger{}
	reg := scraper.NewRegistry(stubScraper{name: "scraperapi"}, stubScraper{name: "firecrawl"})
	svc := services.NewPreviews(st, q, reg, sites.Default(nil), nil, trig, nil)

	deps := Deps{Previews: svc, Store: st, Queue: q, Redis: rdb}
	if withWorker {
		deps.Worker = trig
	}
	return NewServer(cfg, deps), trig
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestGeneratePreview_ThenStatus(t *testing.T) {
	s, trig := newTestServer(t, nil, false, nil)

	code, body := do(t, s, http.MethodPost, "/v1/previews", `{"url":"https://example.com/listing/123"}`, nil)
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%v)", code, body)
	}
	if body["success"] != true || body["queuePosition"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
	id, _ := body["previewId"].(string)
	if id == "" {
		t.Fatalf("missing previewId: %v", body)
	}
	if trig.n != 1 {
		t.Fatalf("expected one trigger, got %d", trig.n)
	}

	code, body = do(t, s, http.MethodGet, "/v1/previews/"+id+"/status", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "queued" || body["phase"] != "queue" || body["queuePosition"] != float64(1) || body["processing"] != false {
		t.Fatalf("unexpected status body: %v", body)
	}
}

func TestGeneratePreview_InvalidURL(t *testing.T) {
	s, trig := newTestServer(t, nil, false, nil)

	code, body := do(t, s, http.MethodPost, "/v1/previews", `{"url":"not a url"}`, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body["code"] != "INVALID_URL" || body["error"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	if trig.n != 0 {
		t.Fatalf("trigger should not fire on invalid input")
	}

	code, _ = do(t, s, http.MethodPost, "/v1/previews", `{`, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", code)
	}
}

func TestPreviewStatus_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil, false, nil)

	if code, _ := do(t, s, http.MethodGet, "/v1/previews/nope/status", "", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	code, body := do(t, s, http.MethodGet, "/v1/previews/0192f5a4-7c1e-7ab2-9d1e-0c4b8e6f2a10/status", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if body["success"] != false || body["error"] != "Preview not found" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestClaimAndDebug_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil, false, nil)
	_, body := do(t, s, http.MethodPost, "/v1/previews", `{"url":"https://example.com/a"}`, nil)
	id := body["previewId"].(string)

	code, _ := do(t, s, http.MethodPost, "/v1/previews/"+id+"/claim", `{"workspaceId":"ws","userId":"u"}`, nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 for an unfinished preview, got %d", code)
	}

	code, _ = do(t, s, http.MethodPost, "/v1/previews/"+id+"/debug/rerun-call1", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 without a stage runner, got %d", code)
	}
}

func TestWorkerTrigger(t *testing.T) {
	cfg := &config.Config{}
	cfg.Worker.InternalToken = "secret"
	s, trig := newTestServer(t, cfg, true, nil)

	if code, _ := do(t, s, http.MethodPost, "/internal/worker/trigger", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code, _ := do(t, s, http.MethodPost, "/internal/worker/trigger", "", map[string]string{pipeline.InternalTokenHeader: "wrong"}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", code)
	}
	code, _ := do(t, s, http.MethodPost, "/internal/worker/trigger", "", map[string]string{pipeline.InternalTokenHeader: "secret"})
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if trig.n != 1 {
		t.Fatalf("expected one trigger, got %d", trig.n)
	}

	apiOnly, _ := newTestServer(t, cfg, false, nil)
	if code, _ := do(t, apiOnly, http.MethodPost, "/internal/worker/trigger", "", map[string]string{pipeline.InternalTokenHeader: "secret"}); code != http.StatusNotFound {
		t.Fatalf("expected 404 on an api-only node, got %d", code)
	}
}

func TestWorkerTrigger_NoTokenConfigured(t *testing.T) {
	s, _ := newTestServer(t, nil, true, nil)
	code, _ := do(t, s, http.MethodPost, "/internal/worker/trigger", "", map[string]string{pipeline.InternalTokenHeader: ""})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{}
	cfg.RateLimit.DefaultPerMinute = 2
	s, _ := newTestServer(t, cfg, false, rdb)

	path := "/v1/previews/0192f5a4-7c1e-7ab2-9d1e-0c4b8e6f2a10/status"
	for i := 0; i < 2; i++ {
		if code, _ := do(t, s, http.MethodGet, path, "", nil); code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d", i, code)
		}
	}
	code, body := do(t, s, http.MethodGet, path, "", nil)
	if code != http.StatusTooManyRequests || body["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected 429, got %d (%v)", code, body)
	}

	if code, _ := do(t, s, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", code)
	}

	mr.Close()
	if code, _ := do(t, s, http.MethodGet, path, "", nil); code != http.StatusNotFound {
		t.Fatalf("redis outage should fail open, got %d", code)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil, false, nil)

	code, body := do(t, s, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected shallow health: %d %v", code, body)
	}

	code, body = do(t, s, http.MethodGet, "/healthz?deep=true", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["db"] != "ok" || body["queue"] != "ok" || body["redis"] != "disabled" || body["queueDepth"] != float64(0) {
		t.Fatalf("unexpected deep health: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil, false, nil)
	do(t, s, http.MethodGet, "/healthz", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "ottie_http_requests_total") {
		t.Fatalf("expected request counter in metrics output, got:\n%s", raw)
	}
}
