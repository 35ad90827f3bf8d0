package scraper

import (
	"time"

	"ottie/internal/config"
)

// ActionType names a post-load browser interaction.
type ActionType string

const (
	ActionWait   ActionType = "wait"
	ActionClick  ActionType = "click"
	ActionScroll ActionType = "scroll"
)

// Action is one post-load interaction, such as clicking a "load more
// photos" button. Repeat > 1 clicks the selector that many times.
type Action struct {
	Type         ActionType
	Selector     string
	Milliseconds int
	Repeat       int
}

// RequestOptions is a higher-level set of options used to construct a
// Request consistently across the worker and the debug operations.
type RequestOptions struct {
	URL       string
	TimeoutMs int
	UserAgent string
	Actions   []Action
}

// BuildRequestFromOptions builds a Request, falling back to the
// configured scraper timeout and user agent.
func BuildRequestFromOptions(cfg *config.Config, opts RequestOptions) Request {
	timeoutMs := opts.TimeoutMs
	if timeoutMs <= 0 && cfg != nil {
		timeoutMs = cfg.Scraper.TimeoutMs
	}
	ua := opts.UserAgent
	if ua == "" && cfg != nil {
		ua = cfg.Scraper.UserAgent
	}

	var timeout time.Duration
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	return Request{
		URL:       opts.URL,
		Timeout:   timeout,
		UserAgent: ua,
		Actions:   opts.Actions,
	}
}

func repeatCount(a Action) int {
	if a.Repeat > 1 {
		return a.Repeat
	}
	return 1
}
