package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ottie/internal/config"
)

// Apify runs a site-specific Apify actor synchronously and returns the
// first dataset item as structured JSON.
type Apify struct {
	id      string
	actor   string
	token   string
	baseURL string
	client  *http.Client
}

func NewApify(cfg config.ApifyConfig, actor config.ApifyActorConfig) *Apify {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.apify.com"
	}
	id := actor.ID
	if id == "" {
		id = "apify_" + strings.ReplaceAll(actor.Actor, "/", "_")
	}
	return &Apify{
		id:      id,
		actor:   actor.Actor,
		token:   cfg.Token,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{},
	}
}

// Name returns the scraper id, e.g. apify_zillow.
func (a *Apify) Name() string { return a.id }

func (a *Apify) Configured() error {
	if a.token == "" {
		return configError(a.id, "API token")
	}
	if a.actor == "" {
		return configError(a.id, "actor name")
	}
	return nil
}

type apifyInput struct {
	StartURLs []apifyStartURL `json:"startUrls"`
}

type apifyStartURL struct {
	URL string `json:"url"`
}

func (a *Apify) Scrape(ctx context.Context, req Request) (*Result, error) {
	if err := a.Configured(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, req)
	defer cancel()

	buf, err := json.Marshal(apifyInput{StartURLs: []apifyStartURL{{URL: req.URL}}})
	if err != nil {
		return nil, bodyError(a.id, "Invalid scrape request", err)
	}

	q := url.Values{}
	q.Set("token", a.token)
	if req.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(int(req.Timeout/time.Second)))
	}
	// Actor names use "~" in place of "/" in API paths.
	actorPath := strings.ReplaceAll(a.actor, "/", "~")
	endpoint := a.baseURL + "/v2/acts/" + url.PathEscape(actorPath) + "/run-sync-get-dataset-items?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, bodyError(a.id, "Invalid scrape request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	body, err := doRequest(a.client, a.id, httpReq)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, bodyError(a.id, "The scraping service returned an unreadable response", err)
	}
	if len(items) == 0 {
		return nil, bodyError(a.id, "The listing could not be extracted from this page", nil)
	}

	return &Result{
		Provider:  a.id,
		Kind:      KindJSON,
		Duration:  time.Since(start),
		JSON:      items[0],
		ScraperID: a.id,
	}, nil
}
