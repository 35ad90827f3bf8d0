package sites

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Zillow listings come from a structured scraper; the adapter mainly
// cleans that JSON. HTML cleaning only applies if a page is ever
// scraped through a generic provider.
type Zillow struct {
	hostAdapter
}

func NewZillow() *Zillow {
	return &Zillow{hostAdapter{name: "zillow", hosts: []string{"zillow.com"}}}
}

// zillowDropKeys are technical or cross-listing fields with no value
// for a single-property site.
var zillowDropKeys = map[string]bool{
	"nearbyHomes":            true,
	"nearbyCities":           true,
	"nearbyNeighborhoods":    true,
	"nearbyZipcodes":         true,
	"comps":                  true,
	"onsiteMessage":          true,
	"adTargets":              true,
	"staticMap":              true,
	"tourEligibility":        true,
	"mortgageRates":          true,
	"topNavJson":             true,
	"pals":                   true,
	"formattedChip":          true,
	"thirdPartyVirtualTour":  true,
	"listingAccountUserId":   true,
	"zestimateLowPercent":    true,
	"zestimateHighPercent":   true,
	"isFeatured":             true,
	"isPremierBuilder":       true,
	"mlsDisclaimer":          true,
	"hdpTypeDimension":       true,
	"tracking":               true,
	"streetViewMetadataUrl":  true,
	"streetViewTileImageUrl": true,
}

// CleanJSON strips technical fields, flattens photo sources to plain
// URLs and hoists resoFacts to a top-level "facts" object.
func (z *Zillow) CleanJSON(v any) any {
	root, ok := v.(map[string]any)
	if !ok {
		return prune(v)
	}

	out := map[string]any{}
	for k, val := range root {
		switch {
		case zillowDropKeys[k], strings.HasPrefix(k, "_"):
			continue
		case k == "photos" || k == "responsivePhotos" || k == "originalPhotos":
			if urls := zillowPhotoURLs(val); len(urls) > 0 {
				if _, seen := out["photos"]; !seen {
					out["photos"] = urls
				}
			}
		case k == "resoFacts":
			if facts := prune(val); facts != nil {
				out["facts"] = facts
			}
		default:
			if p := prune(val); p != nil {
				out[k] = p
			}
		}
	}
	return out
}

// zillowPhotoURLs picks the widest jpeg of every photo entry.
func zillowPhotoURLs(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var urls []string
	for _, item := range list {
		switch p := item.(type) {
		case string:
			urls = append(urls, p)
		case map[string]any:
			if u := widestSource(p); u != "" {
				urls = append(urls, u)
			} else if u, ok := p["url"].(string); ok {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

func widestSource(photo map[string]any) string {
	mixed, ok := photo["mixedSources"].(map[string]any)
	if !ok {
		return ""
	}
	var best string
	bestWidth := -1.0
	for _, format := range []string{"jpeg", "webp"} {
		sources, _ := mixed[format].([]any)
		for _, s := range sources {
			src, ok := s.(map[string]any)
			if !ok {
				continue
			}
			u, _ := src["url"].(string)
			w, _ := src["width"].(float64)
			if u != "" && w > bestWidth {
				best, bestWidth = u, w
			}
		}
		if best != "" {
			return best
		}
	}
	return best
}

// prune drops nulls, empty strings, empty collections, "__typename" and
// underscore-prefixed keys recursively. It returns nil when nothing is
// left.
func prune(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return t
	case map[string]any:
		out := map[string]any{}
		for k, val := range t {
			if k == "__typename" || strings.HasPrefix(k, "_") {
				continue
			}
			if p := prune(val); p != nil {
				out[k] = p
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if p := prune(val); p != nil {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

func (z *Zillow) Clean(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript, iframe, header, footer, nav").Remove()
	doc.Find(`[data-testid="nearby-homes"], [data-testid="similar-homes"]`).Remove()
	removeSectionsByHeading(doc.Selection, []string{"Nearby homes", "Similar homes", "Nearby schools"})
	return outerHTML(doc.Find("body").First())
}

func (z *Zillow) ExtractGallery(html string, pageURL *url.URL) []string {
	keep := func(u string) bool { return strings.Contains(u, "zillowstatic.com") }
	images := scanImageURLs(html, keep)
	// Zillow serves the same photo in several sizes; keep the
	// uncropped variant first seen per photo id.
	seen := map[string]bool{}
	out := make([]string, 0, len(images))
	for _, u := range images {
		id := zillowPhotoID(u)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, u)
	}
	return out
}

func zillowPhotoID(u string) string {
	base := u[strings.LastIndex(u, "/")+1:]
	if i := strings.Index(base, "-"); i > 0 {
		return base[:i]
	}
	return base
}
