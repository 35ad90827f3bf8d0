package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodScraper uses a real browser (via rod) to render JS-heavy pages and
// run post-load actions. It needs no credentials, only a reachable
// Chrome when BrowserURL is set.
type RodScraper struct {
	BrowserURL string
	Timeout    time.Duration
}

func NewRodScraper(browserURL string, timeout time.Duration) *RodScraper {
	return &RodScraper{BrowserURL: browserURL, Timeout: timeout}
}

func (r *RodScraper) Name() string { return "browser" }

func (r *RodScraper) Configured() error { return nil }

func (r *RodScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, bodyError(r.Name(), "Invalid URL", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	ctx, cancel := withTimeout(ctx, Request{Timeout: timeout})
	defer cancel()

	start := time.Now()

	// Prepare browser with context and timeout
	browser := rod.New().Context(ctx)
	if r.BrowserURL != "" {
		browser = browser.ControlURL(r.BrowserURL)
	}

	if err := browser.Connect(); err != nil {
		return nil, transportError(r.Name(), ctxErr(ctx, err))
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, transportError(r.Name(), ctxErr(ctx, err))
	}
	defer page.MustClose()

	if req.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent})
	}

	if err := page.WaitLoad(); err != nil {
		return nil, transportError(r.Name(), ctxErr(ctx, err))
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, transportError(r.Name(), ctxErr(ctx, err))
	}
	if strings.TrimSpace(htmlStr) == "" {
		return nil, bodyError(r.Name(), "The website returned an empty page", nil)
	}

	res := &Result{Provider: r.Name(), Kind: KindHTML, HTML: htmlStr}

	if len(req.Actions) > 0 {
		if err := runActions(ctx, page, req.Actions); err != nil {
			return nil, transportError(r.Name(), ctxErr(ctx, err))
		}
		after, err := page.HTML()
		if err != nil {
			return nil, transportError(r.Name(), ctxErr(ctx, err))
		}
		res.ActionHTML = after
	}

	res.Duration = time.Since(start)
	return res, nil
}

func runActions(ctx context.Context, page *rod.Page, actions []Action) error {
	for _, a := range actions {
		switch a.Type {
		case ActionWait:
			if err := sleep(ctx, time.Duration(a.Milliseconds)*time.Millisecond); err != nil {
				return err
			}
		case ActionClick:
			for i := 0; i < repeatCount(a); i++ {
				els, err := page.Elements(a.Selector)
				if err != nil {
					return err
				}
				// A missing button just means there is nothing more to load.
				if len(els) == 0 {
					break
				}
				if err := els.First().Click(proto.InputMouseButtonLeft, 1); err != nil {
					return err
				}
				if err := sleep(ctx, time.Duration(a.Milliseconds)*time.Millisecond); err != nil {
					return err
				}
			}
		case ActionScroll:
			if err := page.Mouse.Scroll(0, 2000, 4); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ctxErr prefers the context error so deadline hits classify as timeouts.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
