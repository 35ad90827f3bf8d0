package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ottie/internal/config"
)

// Firecrawl scrapes through the Firecrawl v1 API. It is the only hosted
// provider that can run post-load actions, so gallery scrapes use it.
type Firecrawl struct {
	cfg    config.FirecrawlConfig
	client *http.Client
}

func NewFirecrawl(cfg config.FirecrawlConfig) *Firecrawl {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.firecrawl.dev"
	}
	return &Firecrawl{cfg: cfg, client: &http.Client{}}
}

func (f *Firecrawl) Name() string { return "firecrawl" }

func (f *Firecrawl) Configured() error {
	if f.cfg.APIKey == "" {
		return configError(f.Name(), "API key")
	}
	return nil
}

type firecrawlAction struct {
	Type         string `json:"type"`
	Selector     string `json:"selector,omitempty"`
	Milliseconds int    `json:"milliseconds,omitempty"`
	Direction    string `json:"direction,omitempty"`
}

type firecrawlRequest struct {
	URL     string            `json:"url"`
	Formats []string          `json:"formats"`
	WaitFor int               `json:"waitFor,omitempty"`
	Timeout int               `json:"timeout,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Actions []firecrawlAction `json:"actions,omitempty"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		RawHTML string `json:"rawHtml"`
		HTML    string `json:"html"`
		Actions *struct {
			Scrapes []struct {
				URL  string `json:"url"`
				HTML string `json:"html"`
			} `json:"scrapes"`
		} `json:"actions"`
		Metadata struct {
			StatusCode int    `json:"statusCode"`
			Error      string `json:"error"`
		} `json:"metadata"`
	} `json:"data"`
}

// firecrawlActions translates actions into the API's action list. A
// leading "scrape" action captures the page before any interaction so
// both snapshots come back from one call.
func firecrawlActions(actions []Action) []firecrawlAction {
	if len(actions) == 0 {
		return nil
	}
	out := []firecrawlAction{{Type: "scrape"}}
	for _, a := range actions {
		switch a.Type {
		case ActionWait:
			out = append(out, firecrawlAction{Type: "wait", Milliseconds: a.Milliseconds})
		case ActionClick:
			for i := 0; i < repeatCount(a); i++ {
				out = append(out, firecrawlAction{Type: "click", Selector: a.Selector})
				if a.Milliseconds > 0 {
					out = append(out, firecrawlAction{Type: "wait", Milliseconds: a.Milliseconds})
				}
			}
		case ActionScroll:
			out = append(out, firecrawlAction{Type: "scroll", Direction: "down"})
		}
	}
	return out
}

func (f *Firecrawl) Scrape(ctx context.Context, req Request) (*Result, error) {
	if err := f.Configured(); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, req)
	defer cancel()

	payload := firecrawlRequest{
		URL:     req.URL,
		Formats: []string{"rawHtml"},
		WaitFor: f.cfg.WaitMs,
		Actions: firecrawlActions(req.Actions),
	}
	if req.Timeout > 0 {
		payload.Timeout = int(req.Timeout / time.Millisecond)
	}
	if req.UserAgent != "" {
		payload.Headers = map[string]string{"User-Agent": req.UserAgent}
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, bodyError(f.Name(), "Invalid scrape request", err)
	}

	endpoint := strings.TrimRight(f.cfg.BaseURL, "/") + "/v1/scrape"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, bodyError(f.Name(), "Invalid scrape request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)

	start := time.Now()
	body, err := doRequest(f.client, f.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	var resp firecrawlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, bodyError(f.Name(), "The scraping service returned an unreadable response", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "The scraping service could not scrape this page"
		}
		if strings.Contains(strings.ToLower(msg), "timeout") {
			return nil, &ScrapeError{Provider: f.Name(), Kind: ErrKindTimeout, Message: TimeoutMessage}
		}
		return nil, bodyError(f.Name(), msg, nil)
	}
	if code := resp.Data.Metadata.StatusCode; code >= 400 {
		return nil, statusError(f.Name(), code)
	}

	final := resp.Data.RawHTML
	if final == "" {
		final = resp.Data.HTML
	}
	res := &Result{
		Provider: f.Name(),
		Kind:     KindHTML,
		HTML:     final,
	}
	if len(req.Actions) > 0 {
		res.ActionHTML = final
		if resp.Data.Actions != nil && len(resp.Data.Actions.Scrapes) > 0 && resp.Data.Actions.Scrapes[0].HTML != "" {
			res.HTML = resp.Data.Actions.Scrapes[0].HTML
		}
	}
	if strings.TrimSpace(res.HTML) == "" {
		return nil, bodyError(f.Name(), "The website returned an empty page", nil)
	}
	res.Duration = time.Since(start)
	return res, nil
}
