package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ottie/internal/configgen"
	"ottie/internal/model"
	"ottie/internal/store"
	"ottie/internal/structured"
)

// The operations below re-run one stage from what is already stored on
// the record, without scraping again. Each checks only that its input
// field exists. Re-runs that call the LLM move the record back to pending
// first and go through the same failure handling as the worker.

// ReextractStructured rebuilds structured data from the stored capture.
func (w *Worker) ReextractStructured(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	ex := extractionOf(p)
	switch {
	case len(p.RawJSON) > 0:
		fromJSON, photos, err := w.extractJSON(w.sites.LookupURL(p.ExternalURL), p.RawJSON)
		if err != nil {
			return nil, err
		}
		ex.StructuredData = fromJSON.StructuredData
		ex.NormalizedText = fromJSON.NormalizedText
		if photos != nil {
			if err := w.store.SaveGallery(ctx, id, photos); err != nil {
				return nil, err
			}
		}
	case p.RawHTML != "":
		ex.StructuredData = structured.Extract(p.RawHTML).Marshal()
	default:
		return nil, fmt.Errorf("raw capture: %w", ErrMissingInput)
	}

	if err := w.store.SaveExtraction(ctx, id, ex); err != nil {
		return nil, err
	}
	w.logInfo("preview_structured_reextracted", "preview_id", id.String())
	return w.store.GetPreview(ctx, id)
}

// RecleanHTML re-runs the site cleaner and normalizers on the stored HTML.
func (w *Worker) RecleanHTML(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.RawHTML == "" {
		return nil, fmt.Errorf("raw html: %w", ErrMissingInput)
	}

	ex := w.extractHTML(ctx, w.sites.LookupURL(p.ExternalURL), p.RawHTML, p.ExternalURL)
	if err := w.store.SaveExtraction(ctx, id, ex); err != nil {
		return nil, err
	}
	w.logInfo("preview_html_recleaned", "preview_id", id.String(), "text_len", len(ex.NormalizedText))
	return w.store.GetPreview(ctx, id)
}

// ReextractGallery re-runs gallery extraction on the stored HTML. A site
// without an adapter yields an empty gallery.
func (w *Worker) ReextractGallery(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.RawHTML == "" && p.GalleryRawHTML == "" {
		return nil, fmt.Errorf("raw html: %w", ErrMissingInput)
	}

	c := &model.Capture{RawHTML: p.RawHTML, GalleryRawHTML: p.GalleryRawHTML}
	images := w.gallery(w.sites.LookupURL(p.ExternalURL), c, p.ExternalURL)
	if images == nil {
		images = []string{}
	}
	if err := w.store.SaveGallery(ctx, id, images); err != nil {
		return nil, err
	}
	w.logInfo("preview_gallery_reextracted", "preview_id", id.String(), "images", len(images))
	return w.store.GetPreview(ctx, id)
}

// RerunCall1 regenerates the config. The record stays pending with the
// refinement still to run.
func (w *Worker) RerunCall1(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(call1Input(p).Text) == "" {
		return nil, fmt.Errorf("normalized text: %w", ErrMissingInput)
	}
	return w.resumeWith(ctx, id, func() error {
		return w.call1(ctx, id)
	})
}

// RerunCall2 refines the stored generated config and completes the record.
func (w *Worker) RerunCall2(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(p.GeneratedConfig) == 0 {
		return nil, fmt.Errorf("generated config: %w", ErrMissingInput)
	}
	return w.resumeWith(ctx, id, func() error {
		if err := w.call2(ctx, id); err != nil {
			return err
		}
		if err := w.store.Complete(ctx, id); err != nil {
			return stageErr(StagePersist, err)
		}
		return nil
	})
}

// Regenerate runs every stage after the scrape again from the stored
// capture.
func (w *Worker) Regenerate(ctx context.Context, id uuid.UUID) (*model.Preview, error) {
	w.busy.Lock()
	defer w.busy.Unlock()

	p, err := w.store.GetPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.RawHTML == "" && len(p.RawJSON) == 0 {
		return nil, fmt.Errorf("raw capture: %w", ErrMissingInput)
	}
	return w.resumeWith(ctx, id, func() error {
		c := &model.Capture{RawHTML: p.RawHTML, RawJSON: p.RawJSON, GalleryRawHTML: p.GalleryRawHTML}
		if err := w.extract(ctx, p, w.sites.LookupURL(p.ExternalURL), c); err != nil {
			return err
		}
		return w.generate(ctx, id)
	})
}

// resumeWith moves id back to pending, runs fn and records any failure
// on the record before returning it.
func (w *Worker) resumeWith(ctx context.Context, id uuid.UUID, fn func() error) (*model.Preview, error) {
	if err := w.store.Resume(ctx, id); err != nil {
		return nil, fmt.Errorf("resume preview: %w", err)
	}
	if err := fn(); err != nil {
		w.fail(ctx, id, err)
		return nil, err
	}
	return w.store.GetPreview(ctx, id)
}

func extractionOf(p *model.Preview) model.Extraction {
	return model.Extraction{
		StructuredData: p.StructuredData,
		CleanedHTML:    p.CleanedHTML,
		NormalizedText: p.NormalizedText,
		Markdown:       p.Markdown,
	}
}

// IsMissingInput reports whether a re-run failed because its input field
// is not on the record.
func IsMissingInput(err error) bool {
	return errors.Is(err, ErrMissingInput) || errors.Is(err, configgen.ErrNoInput)
}

// IsInvalidState reports whether err means the record cannot be re-run in
// its current status.
func IsInvalidState(err error) bool {
	return errors.Is(err, store.ErrInvalidTransition)
}
