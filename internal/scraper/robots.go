package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	robotstxt "github.com/temoto/robotstxt"
)

// RobotsChecker fetches and caches robots.txt per host. Fetch failures
// allow the scrape: an unreachable robots.txt is not a disallow.
type RobotsChecker struct {
	UserAgent string
	client    *http.Client

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

func NewRobotsChecker(userAgent string) *RobotsChecker {
	if userAgent == "" {
		userAgent = "ottie"
	}
	return &RobotsChecker{
		UserAgent: userAgent,
		client:    &http.Client{Timeout: 5 * time.Second},
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (c *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	key := u.Scheme + "://" + u.Host
	c.mu.Lock()
	data, ok := c.cache[key]
	c.mu.Unlock()

	if !ok {
		data, _ = c.fetch(ctx, u)
		c.mu.Lock()
		c.cache[key] = data
		c.mu.Unlock()
	}
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.FindGroup(c.UserAgent).Test(path)
}

// fetch fetches and parses robots.txt for a given base URL.
func (c *RobotsChecker) fetch(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
