package sites

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rightmove ships every photo URL in the inline page model, so the
// gallery comes straight from the raw HTML.
type Rightmove struct {
	hostAdapter
}

func NewRightmove() *Rightmove {
	return &Rightmove{hostAdapter{name: "rightmove", hosts: []string{"rightmove.co.uk"}}}
}

var rightmoveNoise = []string{
	"script", "style", "noscript", "iframe", "svg",
	"header", "footer", "nav",
	`[data-test="similar-properties"]`, `[data-testid="similar-properties"]`,
	`[data-test="mortgage-calculator"]`, `[data-testid="mortgage-calculator"]`,
	`[data-test="contact-agent"]`, `#onetrust-consent-sdk`,
}

var rightmoveNoiseHeadings = []string{
	"similar properties", "people also viewed", "mortgage calculator",
	"nearest stations", "nearest schools", "broadband",
}

func (r *Rightmove) Clean(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	main := doc.Find("main, article").First()
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}
	main.Find(strings.Join(rightmoveNoise, ", ")).Remove()
	removeSectionsByHeading(main, rightmoveNoiseHeadings)

	return outerHTML(main)
}

func (r *Rightmove) ExtractGallery(html string, pageURL *url.URL) []string {
	keep := func(u string) bool {
		return strings.Contains(u, "media.rightmove.co.uk") && !strings.Contains(u, "/brand/") && !strings.Contains(u, "_FLP_")
	}
	images := scanImageURLs(html, keep)

	// Resized copies carry a "_max_WxH" suffix; prefer the original.
	out := make([]string, 0, len(images))
	seen := map[string]bool{}
	for _, u := range images {
		key := rightmovePhotoKey(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

func rightmovePhotoKey(u string) string {
	if i := strings.Index(u, "_max_"); i > 0 {
		ext := u[strings.LastIndex(u, "."):]
		u = u[:i] + ext
	}
	if i := strings.Index(u, "/dir/"); i > 0 {
		u = u[i:]
	}
	return u
}
