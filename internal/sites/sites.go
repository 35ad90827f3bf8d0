// Package sites holds per-domain processing for listing pages: HTML
// pruning, gallery image extraction and cleaning of structured JSON from
// site-specific scrapers.
package sites

import (
	"fmt"
	"log/slog"
	"net/url"

	"ottie/internal/scraper"
	"ottie/internal/scrapeutil"
)

// Adapter is the per-site processor resolved once per job.
type Adapter interface {
	Name() string
	Matches(host string) bool
	// Clean prunes a listing page down to its useful content.
	Clean(html string) string
	// ExtractGallery returns ordered, absolute image URLs.
	ExtractGallery(html string, pageURL *url.URL) []string
}

// JSONCleaner is implemented by adapters whose site is served by a
// structured JSON scraper.
type JSONCleaner interface {
	CleanJSON(v any) any
}

// GalleryScraper is implemented by adapters whose photos only appear
// after interacting with the page.
type GalleryScraper interface {
	GalleryActions() []scraper.Action
}

// Registry resolves adapters by hostname.
type Registry struct {
	adapters []Adapter
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger, adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters, logger: logger}
}

// Default returns the registry with every built-in adapter.
func Default(logger *slog.Logger) *Registry {
	return NewRegistry(logger, NewZillow(), NewIdealista(), NewRightmove())
}

// Lookup returns the adapter for host, or nil. Matching ignores case and
// a leading "www.".
func (r *Registry) Lookup(host string) Adapter {
	if r == nil {
		return nil
	}
	host = scrapeutil.NormalizeHost(host)
	if host == "" {
		return nil
	}
	for _, a := range r.adapters {
		if a.Matches(host) {
			return a
		}
	}
	return nil
}

// LookupURL is Lookup on the hostname of rawURL.
func (r *Registry) LookupURL(rawURL string) Adapter {
	return r.Lookup(scrapeutil.HostOf(rawURL))
}

func (r *Registry) logWarn(msg string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Warn(msg, args...)
}

// Clean runs a.Clean. A nil adapter, a panic or an empty result passes
// html through unchanged.
func (r *Registry) Clean(a Adapter, html string) (out string) {
	if a == nil {
		return html
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logWarn("site_clean_failed", "site", a.Name(), "error", fmt.Sprint(rec))
			out = html
		}
	}()
	cleaned := a.Clean(html)
	if cleaned == "" {
		return html
	}
	return cleaned
}

// ExtractGallery runs a.ExtractGallery. It returns nil when there is no
// adapter, so callers can tell "not extracted" from "no images".
func (r *Registry) ExtractGallery(a Adapter, html string, pageURL *url.URL) (out []string) {
	if a == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logWarn("site_gallery_failed", "site", a.Name(), "error", fmt.Sprint(rec))
			out = []string{}
		}
	}()
	images := a.ExtractGallery(html, pageURL)
	if images == nil {
		images = []string{}
	}
	return images
}

// CleanJSON runs the adapter's JSON cleaner when it has one.
func (r *Registry) CleanJSON(a Adapter, v any) (out any) {
	jc, ok := a.(JSONCleaner)
	if !ok {
		return v
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logWarn("site_json_clean_failed", "site", a.Name(), "error", fmt.Sprint(rec))
			out = v
		}
	}()
	return jc.CleanJSON(v)
}

// GalleryActions returns the post-load actions a needs, or nil.
func GalleryActions(a Adapter) []scraper.Action {
	if gs, ok := a.(GalleryScraper); ok {
		return gs.GalleryActions()
	}
	return nil
}

// hostAdapter supplies Name and Matches for the built-in adapters.
type hostAdapter struct {
	name  string
	hosts []string
}

func (h hostAdapter) Name() string { return h.name }

func (h hostAdapter) Matches(host string) bool {
	return scrapeutil.HostMatches(host, h.hosts...)
}
