package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("POST", "/v1/previews", 200, 42)

	out := Export()
	if !strings.Contains(out, "ottie_http_requests_total{method=\"POST\",path=\"/v1/previews\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for POST /v1/previews in export, got:\n%s", out)
	}
	if !strings.Contains(out, "ottie_http_request_duration_ms_sum") || !strings.Contains(out, "ottie_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordScrapeMetrics(t *testing.T) {
	RecordScrape("firecrawl", "success", 1200)
	RecordScrape("firecrawl", "timeout", 0)

	out := Export()
	if !strings.Contains(out, "ottie_scrapes_total{provider=\"firecrawl\",outcome=\"success\"}") {
		t.Fatalf("expected success scrape counter, got:\n%s", out)
	}
	if !strings.Contains(out, "ottie_scrapes_total{provider=\"firecrawl\",outcome=\"timeout\"}") {
		t.Fatalf("expected timeout scrape counter, got:\n%s", out)
	}
	if !strings.Contains(out, "ottie_scrape_duration_ms_sum{provider=\"firecrawl\"}") {
		t.Fatalf("expected scrape duration sum, got:\n%s", out)
	}
}

func TestRecordPipelineMetrics(t *testing.T) {
	RecordLLMCall("call1", "openai", "gpt-test", true, 1500)
	RecordPreviewOutcome("completed")
	SetQueueDepth(3)
	RecordSweepRequeued(2)
	RecordRetentionPreviews(1)

	out := Export()
	for _, want := range []string{
		"ottie_llm_calls_total{stage=\"call1\",provider=\"openai\",model=\"gpt-test\",success=\"true\"}",
		"ottie_llm_tokens_total{stage=\"call1\"}",
		"ottie_previews_total{status=\"completed\"}",
		"ottie_queue_depth 3",
		"ottie_sweep_requeued_total",
		"ottie_retention_previews_deleted_total",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in export, got:\n%s", want, out)
		}
	}
}
