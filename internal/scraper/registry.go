package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ottie/internal/config"
	"ottie/internal/metrics"
	"ottie/internal/scrapeutil"
)

type specificEntry struct {
	hosts   []string
	scraper Scraper
}

// Registry picks a provider for a URL: a site-specific structured
// scraper when the host matches one, otherwise the generic provider, or
// the interactive provider when the caller needs post-load actions.
type Registry struct {
	generic     Scraper
	interactive Scraper
	specific    []specificEntry

	limiter *rate.Limiter
	robots  *RobotsChecker
}

func NewRegistry(generic, interactive Scraper) *Registry {
	if interactive == nil {
		interactive = generic
	}
	return &Registry{generic: generic, interactive: interactive}
}

// Register binds a structured scraper to hostnames. Matching is exact
// or by subdomain, case insensitive, ignoring "www.".
func (r *Registry) Register(s Scraper, hosts ...string) {
	norm := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = scrapeutil.NormalizeHost(h); h != "" {
			norm = append(norm, h)
		}
	}
	r.specific = append(r.specific, specificEntry{hosts: norm, scraper: s})
}

// WithRateLimit paces all provider calls to perMinute. Zero disables it.
func (r *Registry) WithRateLimit(perMinute int) *Registry {
	if perMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return r
}

// WithRobots enables robots.txt checks for HTML providers.
func (r *Registry) WithRobots(c *RobotsChecker) *Registry {
	r.robots = c
	return r
}

// Resolve returns the provider for rawURL. interactive selects the
// provider that supports actions; structured scrapers still win when
// the host matches one.
func (r *Registry) Resolve(rawURL string, interactive bool) Scraper {
	host := scrapeutil.HostOf(rawURL)
	for _, e := range r.specific {
		if scrapeutil.HostMatches(host, e.hosts...) {
			return &managed{Scraper: e.scraper, limiter: r.limiter}
		}
	}
	s := r.generic
	if interactive {
		s = r.interactive
	}
	return &managed{Scraper: s, limiter: r.limiter, robots: r.robots}
}

// Specific reports whether rawURL is served by a structured scraper.
func (r *Registry) Specific(rawURL string) bool {
	host := scrapeutil.HostOf(rawURL)
	for _, e := range r.specific {
		if scrapeutil.HostMatches(host, e.hosts...) {
			return true
		}
	}
	return false
}

// CheckCredentials verifies the provider that would serve rawURL is
// configured. It performs no network I/O.
func (r *Registry) CheckCredentials(rawURL string, interactive bool) error {
	s := r.Resolve(rawURL, interactive)
	if s == nil {
		return &ScrapeError{Kind: ErrKindConfig, Message: "No scraping provider is configured"}
	}
	return s.Configured()
}

// managed wraps a provider with pacing, robots checks and metrics.
type managed struct {
	Scraper
	limiter *rate.Limiter
	robots  *RobotsChecker
}

func (m *managed) Configured() error {
	if m.Scraper == nil {
		return &ScrapeError{Kind: ErrKindConfig, Message: "No scraping provider is configured"}
	}
	return m.Scraper.Configured()
}

func (m *managed) Scrape(ctx context.Context, req Request) (*Result, error) {
	if m.Scraper == nil {
		return nil, m.Configured()
	}
	name := m.Name()

	if m.robots != nil && !m.robots.Allowed(ctx, req.URL) {
		metrics.RecordScrape(name, string(ErrKindBlocked), 0)
		return nil, &ScrapeError{
			Provider: name,
			Kind:     ErrKindBlocked,
			Message:  "This website does not allow automated access to the listing page",
		}
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			se := transportError(name, ctxErr(ctx, err))
			metrics.RecordScrape(name, string(se.Kind), 0)
			return nil, se
		}
	}

	res, err := m.Scraper.Scrape(ctx, req)
	if err != nil {
		se, ok := err.(*ScrapeError)
		if !ok {
			se = transportError(name, err)
		}
		metrics.RecordScrape(name, string(se.Kind), 0)
		return nil, se
	}
	metrics.RecordScrape(name, "success", res.Duration.Milliseconds())
	return res, nil
}

// FromConfig builds the registry described by cfg.
func FromConfig(cfg *config.Config) (*Registry, error) {
	timeout := time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond

	build := func(name string) (Scraper, error) {
		switch strings.ToLower(name) {
		case "scraperapi":
			return NewScraperAPI(cfg.Providers.ScraperAPI), nil
		case "firecrawl":
			return NewFirecrawl(cfg.Providers.Firecrawl), nil
		case "browser", "rod":
			return NewRodScraper(cfg.Rod.BrowserURL, timeout), nil
		default:
			return nil, fmt.Errorf("unknown scraping provider %q", name)
		}
	}

	generic, err := build(cfg.Scraper.GenericProvider)
	if err != nil {
		return nil, err
	}
	interactive, err := build(cfg.Scraper.InteractiveProvider)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(generic, interactive).WithRateLimit(cfg.Scraper.RatePerMinute)
	for _, a := range cfg.Providers.Apify.Actors {
		reg.Register(NewApify(cfg.Providers.Apify, a), a.Hosts...)
	}
	if cfg.Robots.Respect {
		reg.WithRobots(NewRobotsChecker(cfg.Scraper.UserAgent))
	}
	return reg, nil
}
