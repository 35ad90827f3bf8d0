package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ottie/internal/configgen"
	"ottie/internal/model"
	"ottie/internal/normalize"
	"ottie/internal/scraper"
	"ottie/internal/scrapeutil"
	"ottie/internal/sites"
	"ottie/internal/structured"
)

// maxDigestLen caps the structured-data digest appended to Call 1 input.
const maxDigestLen = 6000

// scrape marks the record as scraping, fetches the page and persists the
// raw capture. Sites that hide photos behind interactions are fetched
// with the interactive provider and their actions.
func (w *Worker) scrape(ctx context.Context, p *model.Preview, adapter sites.Adapter) (*model.Capture, error) {
	actions := sites.GalleryActions(adapter)
	sc := w.scrapers.Resolve(p.ExternalURL, len(actions) > 0)
	if err := sc.Configured(); err != nil {
		return nil, stageErr(StageScrape, err)
	}

	if err := w.store.MarkScraping(ctx, p.ID, sc.Name(), w.now()); err != nil {
		return nil, stageErr(StagePersist, err)
	}
	p.SourceDomain = sc.Name()

	req := scraper.BuildRequestFromOptions(w.cfg, scraper.RequestOptions{
		URL:     p.ExternalURL,
		Actions: actions,
	})
	res, err := sc.Scrape(ctx, req)
	if err != nil {
		return nil, stageErr(StageScrape, err)
	}

	c := &model.Capture{}
	switch res.Kind {
	case scraper.KindJSON:
		if len(res.JSON) == 0 {
			return nil, stageErr(StageScrape, &scraper.ScrapeError{
				Provider: res.Provider,
				Kind:     scraper.ErrKindBody,
				Message:  "The scraping service returned no listing data",
			})
		}
		c.RawJSON = res.JSON
	default:
		if strings.TrimSpace(res.HTML) == "" {
			return nil, stageErr(StageScrape, &scraper.ScrapeError{
				Provider: res.Provider,
				Kind:     scraper.ErrKindBody,
				Message:  "The scraping service returned an empty page",
			})
		}
		c.RawHTML = res.HTML
		c.GalleryRawHTML = res.ActionHTML
	}

	if err := w.store.SaveCapture(ctx, p.ID, *c); err != nil {
		return nil, stageErr(StagePersist, err)
	}
	w.logInfo("preview_scraped",
		"preview_id", p.ID.String(),
		"provider", res.Provider,
		"kind", res.Kind,
		"duration_ms", res.Duration.Milliseconds(),
		"gallery_html", c.GalleryRawHTML != "",
	)
	return c, nil
}

// extract runs gallery extraction, site cleaning, structured-data
// extraction and normalization on a capture and persists the results.
func (w *Worker) extract(ctx context.Context, p *model.Preview, adapter sites.Adapter, c *model.Capture) error {
	if len(c.RawJSON) > 0 {
		ex, photos, err := w.extractJSON(adapter, c.RawJSON)
		if err != nil {
			return err
		}
		if photos != nil {
			if err := w.store.SaveGallery(ctx, p.ID, photos); err != nil {
				return stageErr(StagePersist, err)
			}
		}
		if err := w.store.SaveExtraction(ctx, p.ID, ex); err != nil {
			return stageErr(StagePersist, err)
		}
		return nil
	}

	if images := w.gallery(adapter, c, p.ExternalURL); images != nil {
		if err := w.store.SaveGallery(ctx, p.ID, images); err != nil {
			return stageErr(StagePersist, err)
		}
		w.logInfo("preview_gallery_extracted", "preview_id", p.ID.String(), "images", len(images))
	}

	ex := w.extractHTML(ctx, adapter, c.RawHTML, p.ExternalURL)
	if err := w.store.SaveExtraction(ctx, p.ID, ex); err != nil {
		return stageErr(StagePersist, err)
	}
	return nil
}

// gallery extracts images from the post-action HTML when there is one,
// else from the main capture. It returns nil without an adapter.
func (w *Worker) gallery(adapter sites.Adapter, c *model.Capture, pageURL string) []string {
	source := c.GalleryRawHTML
	if source == "" {
		source = c.RawHTML
	}
	u, _ := url.Parse(pageURL)
	return w.sites.ExtractGallery(adapter, source, u)
}

// extractHTML cleans raw, then runs structured extraction, structured
// text and markdown conversion concurrently. Failures degrade to empty
// fields.
func (w *Worker) extractHTML(ctx context.Context, adapter sites.Adapter, raw, pageURL string) model.Extraction {
	cleaned := w.sites.Clean(adapter, raw)

	var (
		data *structured.Data
		text string
		md   string
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		data = structured.Extract(raw)
		return nil
	})
	g.Go(func() error {
		text = normalize.StructuredText(cleaned)
		return nil
	})
	g.Go(func() error {
		article, err := normalize.Markdown(cleaned, pageURL)
		if err != nil {
			w.logWarn("markdown_conversion_failed", "url", pageURL, "error", err)
			return nil
		}
		md = article.Markdown
		return nil
	})
	_ = g.Wait()

	return model.Extraction{
		StructuredData: data.Marshal(),
		CleanedHTML:    cleaned,
		NormalizedText: text,
		Markdown:       md,
	}
}

// extractJSON cleans a structured scraper payload and formats it as text
// for Call 1. Photos found in the cleaned payload are returned for the
// gallery field.
func (w *Worker) extractJSON(adapter sites.Adapter, raw json.RawMessage) (model.Extraction, []string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.Extraction{}, nil, stageErr(StageExtract, &scraper.ScrapeError{
			Kind:    scraper.ErrKindBody,
			Message: "The scraping service returned malformed listing data",
			Err:     err,
		})
	}
	cleaned := w.sites.CleanJSON(adapter, v)
	b, err := json.Marshal(cleaned)
	if err != nil {
		return model.Extraction{}, nil, stageErr(StageExtract, err)
	}
	return model.Extraction{
		StructuredData: b,
		NormalizedText: configgen.FormatJSON(cleaned),
	}, photosOf(cleaned), nil
}

func photosOf(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	var out []string
	switch list := m["photos"].(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return scrapeutil.Dedupe(out)
}

// call1 generates the config from the record's normalized content.
func (w *Worker) call1(ctx context.Context, id uuid.UUID) error {
	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return stageErr(StagePersist, err)
	}
	in := call1Input(p)
	if strings.TrimSpace(in.Text) == "" {
		return stageErr(StageCall1, configgen.ErrNoInput)
	}

	if err := w.store.MarkCallStarted(ctx, id, model.StageCall1, w.now()); err != nil {
		return stageErr(StagePersist, err)
	}
	cctx, cancel := w.llmContext(ctx)
	defer cancel()
	res, err := w.gen.Call1(cctx, in)
	if err != nil {
		return stageErr(StageCall1, err)
	}
	if err := w.store.SaveGeneratedConfig(ctx, id, res.Config); err != nil {
		return stageErr(StagePersist, err)
	}
	return nil
}

// call2 refines the title and highlights of the generated config.
func (w *Worker) call2(ctx context.Context, id uuid.UUID) error {
	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return stageErr(StagePersist, err)
	}
	if len(p.GeneratedConfig) == 0 {
		return stageErr(StageCall2, fmt.Errorf("generated config: %w", ErrMissingInput))
	}

	if err := w.store.MarkCallStarted(ctx, id, model.StageCall2, w.now()); err != nil {
		return stageErr(StagePersist, err)
	}
	cctx, cancel := w.llmContext(ctx)
	defer cancel()
	res, err := w.gen.Call2(cctx, p.GeneratedConfig)
	if err != nil {
		return stageErr(StageCall2, err)
	}
	if err := w.store.SaveFinalConfig(ctx, id, res.Config); err != nil {
		return stageErr(StagePersist, err)
	}
	return nil
}

// call1Input picks the text Call 1 works from: formatted JSON for
// structured captures, else structured text (or markdown when the text
// walk found nothing) followed by a digest of the page's structured data.
func call1Input(p *model.Preview) configgen.Call1Input {
	in := configgen.Call1Input{
		URL:        p.ExternalURL,
		Structured: len(p.RawJSON) > 0,
		Photos:     p.GalleryImageURLs,
	}
	if in.Structured {
		in.Text = p.NormalizedText
		return in
	}

	text := p.NormalizedText
	if strings.TrimSpace(text) == "" {
		text = p.Markdown
	}
	if digest := structuredDigest(p.StructuredData); digest != "" && strings.TrimSpace(text) != "" {
		text += "\n\nStructured data:\n" + digest
	}
	in.Text = text
	return in
}

// structuredDigest renders JSON-LD blocks and meta tags as text. Framework
// hydration state is left out; it is mostly UI plumbing.
func structuredDigest(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var data struct {
		JSONLD []json.RawMessage `json:"json_ld"`
		Meta   map[string]string `json:"meta"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}

	var b strings.Builder
	for _, block := range data.JSONLD {
		text, err := configgen.FormatRawJSON(block)
		if err != nil || text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	if len(data.Meta) > 0 {
		keys := make([]string, 0, len(data.Meta))
		for k := range data.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := strings.TrimSpace(data.Meta[k]); v != "" {
				fmt.Fprintf(&b, "%s: %s\n", k, v)
			}
		}
	}
	return scrapeutil.Truncate(strings.TrimSpace(b.String()), maxDigestLen)
}
