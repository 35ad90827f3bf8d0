package sites

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ottie/internal/scrapeutil"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".avif"}

// imageAttrs are checked in order on each image-bearing element; lazy
// loaders keep the real URL in data attributes.
var imageAttrs = []string{"data-src", "data-lazy", "data-ondemand-img", "data-original", "src"}

func isImageURL(u string) bool {
	return scrapeutil.HasExtension(u, imageExtensions...)
}

// collectImages gathers image URLs under sel, resolved against base and
// filtered to known image extensions.
func collectImages(sel *goquery.Selection, base *url.URL, keep func(string) bool) []string {
	var out []string
	add := func(raw string) {
		u := scrapeutil.ResolveURL(base, raw)
		if u == "" || !isImageURL(u) {
			return
		}
		if keep != nil && !keep(u) {
			return
		}
		out = append(out, u)
	}

	sel.Find("img, source").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range imageAttrs {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				add(v)
				break
			}
		}
		if srcset, ok := s.Attr("srcset"); ok {
			if best := largestSrcset(srcset); best != "" {
				add(best)
			}
		}
	})
	return scrapeutil.Dedupe(out)
}

// largestSrcset picks the last candidate of a srcset, which by
// convention is the widest.
func largestSrcset(srcset string) string {
	parts := strings.Split(srcset, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		fields := strings.Fields(strings.TrimSpace(parts[i]))
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

var absoluteImagePattern = regexp.MustCompile(`https?:\\?/\\?/[^\s"'<>()]+?\.(?:jpe?g|png|webp|avif)`)

// scanImageURLs finds absolute image URLs anywhere in raw text,
// including JSON-escaped ones inside inline scripts.
func scanImageURLs(raw string, keep func(string) bool) []string {
	var out []string
	for _, m := range absoluteImagePattern.FindAllString(raw, -1) {
		u := strings.ReplaceAll(m, `\/`, "/")
		if keep != nil && !keep(u) {
			continue
		}
		out = append(out, u)
	}
	return scrapeutil.Dedupe(out)
}

// removeSectionsByHeading drops the closest section-like ancestor of
// any heading under root whose text contains one of phrases. root itself
// is never removed.
func removeSectionsByHeading(root *goquery.Selection, phrases []string) {
	root.Find("h1, h2, h3, h4").Each(func(_ int, h *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(h.Text()))
		for _, p := range phrases {
			if strings.Contains(text, strings.ToLower(p)) {
				section := h.Closest("section, aside, article, div")
				if section.Length() == 0 || section.IsSelection(root) || section.Find("*").IsSelection(root) {
					section = h
				}
				section.Remove()
				return
			}
		}
	})
}

func outerHTML(sel *goquery.Selection) string {
	s, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return s
}
