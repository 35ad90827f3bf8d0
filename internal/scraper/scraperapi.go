package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ottie/internal/config"
)

// ScraperAPI renders pages through api.scraperapi.com and returns the
// resulting HTML. It is the default generic provider.
type ScraperAPI struct {
	cfg    config.ScraperAPIConfig
	client *http.Client
}

func NewScraperAPI(cfg config.ScraperAPIConfig) *ScraperAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.scraperapi.com"
	}
	return &ScraperAPI{cfg: cfg, client: &http.Client{}}
}

func (s *ScraperAPI) Name() string { return "scraperapi" }

func (s *ScraperAPI) Configured() error {
	if s.cfg.APIKey == "" {
		return configError(s.Name(), "API key")
	}
	return nil
}

func (s *ScraperAPI) Scrape(ctx context.Context, req Request) (*Result, error) {
	if err := s.Configured(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, req)
	defer cancel()

	q := url.Values{}
	q.Set("api_key", s.cfg.APIKey)
	q.Set("url", req.URL)
	if s.cfg.Render {
		q.Set("render", "true")
	}
	if s.cfg.Country != "" {
		q.Set("country_code", s.cfg.Country)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, bodyError(s.Name(), "Invalid scrape request", err)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	start := time.Now()
	body, err := doRequest(s.client, s.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	html := string(body)
	if strings.TrimSpace(html) == "" {
		return nil, bodyError(s.Name(), "The website returned an empty page", nil)
	}

	return &Result{
		Provider: s.Name(),
		Kind:     KindHTML,
		Duration: time.Since(start),
		HTML:     html,
	}, nil
}
