package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the API and the preview pipeline.
// In-memory only; every process exports its own counters.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	scrapesTotal     = make(map[scrapeKey]int64)
	scrapeDurationMs = make(map[string]int64)

	llmCalls  = make(map[llmKey]int64)
	llmTokens = make(map[string]int64)

	previewOutcomes = make(map[string]int64)
	queueDepth      int64
	triggerFailures int64
	sweepRequeued   int64

	retentionPreviewsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type scrapeKey struct {
	Provider string
	Outcome  string
}

type llmKey struct {
	Stage    string
	Provider string
	Model    string
	Success  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordScrape counts a provider call and its duration. outcome is a
// short label such as "success", "timeout" or "status".
func RecordScrape(provider, outcome string, durationMs int64) {
	mu.Lock()
	defer mu.Unlock()

	scrapesTotal[scrapeKey{Provider: provider, Outcome: outcome}]++
	if durationMs > 0 {
		scrapeDurationMs[provider] += durationMs
	}
}

// RecordLLMCall counts a config-generation call and the tokens it used.
func RecordLLMCall(stage, provider, model string, success bool, totalTokens int) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	llmCalls[llmKey{Stage: stage, Provider: provider, Model: model, Success: s}]++
	if totalTokens > 0 {
		llmTokens[stage] += int64(totalTokens)
	}
}

// RecordPreviewOutcome counts a preview reaching a terminal status.
func RecordPreviewOutcome(status string) {
	mu.Lock()
	defer mu.Unlock()
	previewOutcomes[status]++
}

// SetQueueDepth records the number of jobs waiting in the queue.
func SetQueueDepth(n int) {
	mu.Lock()
	defer mu.Unlock()
	queueDepth = int64(n)
}

// RecordTriggerFailure counts failed out-of-band worker wake-ups.
func RecordTriggerFailure() {
	mu.Lock()
	defer mu.Unlock()
	triggerFailures++
}

// RecordSweepRequeued counts jobs put back on the queue by the sweep.
func RecordSweepRequeued(n int) {
	if n <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	sweepRequeued += int64(n)
}

// RecordRetentionPreviews increments the counter of previews deleted by
// TTL cleanup.
func RecordRetentionPreviews(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionPreviewsDeleted += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP ottie_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE ottie_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "ottie_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP ottie_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE ottie_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP ottie_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE ottie_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "ottie_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "ottie_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP ottie_scrapes_total Provider scrape calls by outcome\n")
	b.WriteString("# TYPE ottie_scrapes_total counter\n")

	var scrapeKeys []scrapeKey
	for k := range scrapesTotal {
		scrapeKeys = append(scrapeKeys, k)
	}
	sort.Slice(scrapeKeys, func(i, j int) bool {
		if scrapeKeys[i].Provider != scrapeKeys[j].Provider {
			return scrapeKeys[i].Provider < scrapeKeys[j].Provider
		}
		return scrapeKeys[i].Outcome < scrapeKeys[j].Outcome
	})
	for _, k := range scrapeKeys {
		fmt.Fprintf(&b, "ottie_scrapes_total{provider=\"%s\",outcome=\"%s\"} %d\n",
			k.Provider, k.Outcome, scrapesTotal[k])
	}

	b.WriteString("# HELP ottie_scrape_duration_ms_sum Total provider scrape time in milliseconds\n")
	b.WriteString("# TYPE ottie_scrape_duration_ms_sum counter\n")
	var providers []string
	for p := range scrapeDurationMs {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		fmt.Fprintf(&b, "ottie_scrape_duration_ms_sum{provider=\"%s\"} %d\n", p, scrapeDurationMs[p])
	}

	b.WriteString("# HELP ottie_llm_calls_total Config generation LLM calls\n")
	b.WriteString("# TYPE ottie_llm_calls_total counter\n")

	var llmKeys []llmKey
	for k := range llmCalls {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Stage != llmKeys[j].Stage {
			return llmKeys[i].Stage < llmKeys[j].Stage
		}
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})
	for _, k := range llmKeys {
		fmt.Fprintf(&b, "ottie_llm_calls_total{stage=\"%s\",provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			k.Stage, k.Provider, k.Model, k.Success, llmCalls[k])
	}

	b.WriteString("# HELP ottie_llm_tokens_total Tokens used by config generation\n")
	b.WriteString("# TYPE ottie_llm_tokens_total counter\n")
	var stages []string
	for s := range llmTokens {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Fprintf(&b, "ottie_llm_tokens_total{stage=\"%s\"} %d\n", s, llmTokens[s])
	}

	b.WriteString("# HELP ottie_previews_total Previews reaching a terminal status\n")
	b.WriteString("# TYPE ottie_previews_total counter\n")
	var outcomes []string
	for s := range previewOutcomes {
		outcomes = append(outcomes, s)
	}
	sort.Strings(outcomes)
	for _, s := range outcomes {
		fmt.Fprintf(&b, "ottie_previews_total{status=\"%s\"} %d\n", s, previewOutcomes[s])
	}

	b.WriteString("# HELP ottie_queue_depth Jobs waiting in the preview queue\n")
	b.WriteString("# TYPE ottie_queue_depth gauge\n")
	fmt.Fprintf(&b, "ottie_queue_depth %d\n", queueDepth)

	b.WriteString("# HELP ottie_worker_trigger_failures_total Failed worker wake-up requests\n")
	b.WriteString("# TYPE ottie_worker_trigger_failures_total counter\n")
	fmt.Fprintf(&b, "ottie_worker_trigger_failures_total %d\n", triggerFailures)

	b.WriteString("# HELP ottie_sweep_requeued_total Jobs re-enqueued by the sweep\n")
	b.WriteString("# TYPE ottie_sweep_requeued_total counter\n")
	fmt.Fprintf(&b, "ottie_sweep_requeued_total %d\n", sweepRequeued)

	b.WriteString("# HELP ottie_retention_previews_deleted_total Total previews deleted by TTL\n")
	b.WriteString("# TYPE ottie_retention_previews_deleted_total counter\n")
	fmt.Fprintf(&b, "ottie_retention_previews_deleted_total %d\n", retentionPreviewsDeleted)

	return b.String()
}
