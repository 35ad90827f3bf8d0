package sites

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ottie/internal/scraper"
)

// Idealista detail pages hide most photos behind a "more photos"
// button, so the adapter asks for a gallery scrape with clicks.
type Idealista struct {
	hostAdapter
}

func NewIdealista() *Idealista {
	return &Idealista{hostAdapter{
		name:  "idealista",
		hosts: []string{"idealista.com", "idealista.pt", "idealista.it"},
	}}
}

var idealistaNoise = []string{
	"script", "style", "noscript", "iframe", "svg",
	"header", "footer", "nav",
	"#cookies", ".cookies-banner",
	".ad-contact", ".contact-phones", ".advertiser-name-container",
	".related-ads", ".similar-ads", ".lateral-ads",
	".share-ad", ".favorite-btn", ".adFavourite",
	".mortgages-container", ".detail-info-ad-ib",
	"#mortgages", "#headerMap",
}

var idealistaNoiseHeadings = []string{
	"anuncios similares", "similar listings", "annunci simili", "anúncios semelhantes",
	"hipoteca", "mortgage", "mutuo",
	"contactar", "contact the advertiser",
}

func (i *Idealista) Clean(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	main := doc.Find("main#main, main.detail-container, .detail-container").First()
	if main.Length() == 0 {
		main = doc.Find("main").First()
	}
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}

	main.Find(strings.Join(idealistaNoise, ", ")).Remove()
	removeSectionsByHeading(main, idealistaNoiseHeadings)

	return outerHTML(main)
}

func (i *Idealista) ExtractGallery(html string, pageURL *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return []string{}
	}
	keep := func(u string) bool { return strings.Contains(u, "idealista.") }

	gallery := doc.Find("#main-multimedia, .detail-image-gallery, .main-image, .placeholder-multimedia, .gallery-fullscreen")
	images := collectImages(gallery, pageURL, keep)
	if len(images) == 0 {
		images = collectImages(doc.Selection, pageURL, keep)
	}
	// Gallery thumbnails and full-size variants differ only in the
	// size segment of the path.
	out := make([]string, 0, len(images))
	seen := map[string]bool{}
	for _, u := range images {
		key := idealistaPhotoKey(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

func idealistaPhotoKey(u string) string {
	return u[strings.LastIndex(u, "/")+1:]
}

func (i *Idealista) GalleryActions() []scraper.Action {
	return []scraper.Action{
		{Type: scraper.ActionWait, Milliseconds: 1500},
		{Type: scraper.ActionClick, Selector: ".more-photos, .show-more-photos, button.btn-multimedia", Repeat: 3, Milliseconds: 1200},
		{Type: scraper.ActionScroll},
		{Type: scraper.ActionWait, Milliseconds: 1000},
	}
}
