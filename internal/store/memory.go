package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ottie/internal/jobs"
	"ottie/internal/model"
)

// Memory is a process-local Store used when no database is configured
// and in tests.
type Memory struct {
	mu       sync.RWMutex
	previews map[uuid.UUID]*model.Preview
	sites    map[uuid.UUID]*model.Site
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		previews: make(map[uuid.UUID]*model.Preview),
		sites:    make(map[uuid.UUID]*model.Site),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreatePreview(_ context.Context, id uuid.UUID, externalURL string) (*model.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p := &model.Preview{
		ID:          id,
		ExternalURL: externalURL,
		Status:      model.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.previews[id] = p
	return p.Clone(), nil
}

func (m *Memory) GetPreview(_ context.Context, id uuid.UUID) (*model.Preview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.previews[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// update runs fn on the live record under the write lock and bumps
// UpdatedAt when fn succeeds.
func (m *Memory) update(id uuid.UUID, fn func(p *model.Preview) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.previews[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(p); err != nil {
		return err
	}
	p.UpdatedAt = m.now()
	return nil
}

func transitionTo(p *model.Preview, to model.Status) error {
	if !jobs.CanTransition(p.Status, to) {
		return ErrInvalidTransition
	}
	p.Status = to
	return nil
}

func (m *Memory) MarkScraping(_ context.Context, id uuid.UUID, sourceDomain string, claimedAt time.Time) error {
	return m.update(id, func(p *model.Preview) error {
		if err := transitionTo(p, model.StatusScraping); err != nil {
			return err
		}
		p.SourceDomain = sourceDomain
		p.ClaimedAt = &claimedAt
		return nil
	})
}

func (m *Memory) SaveCapture(_ context.Context, id uuid.UUID, c model.Capture) error {
	return m.update(id, func(p *model.Preview) error {
		if p.RawHTML != "" || len(p.RawJSON) > 0 {
			return ErrCaptured
		}
		p.RawHTML = c.RawHTML
		p.RawJSON = append(json.RawMessage(nil), c.RawJSON...)
		p.GalleryRawHTML = c.GalleryRawHTML
		return nil
	})
}

func (m *Memory) SaveGallery(_ context.Context, id uuid.UUID, images []string) error {
	return m.update(id, func(p *model.Preview) error {
		if images == nil {
			p.GalleryImageURLs = nil
			return nil
		}
		p.GalleryImageURLs = append([]string{}, images...)
		return nil
	})
}

func (m *Memory) SaveExtraction(_ context.Context, id uuid.UUID, e model.Extraction) error {
	return m.update(id, func(p *model.Preview) error {
		p.StructuredData = append(json.RawMessage(nil), e.StructuredData...)
		p.CleanedHTML = e.CleanedHTML
		p.NormalizedText = e.NormalizedText
		p.Markdown = e.Markdown
		return nil
	})
}

func (m *Memory) MarkPending(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(p *model.Preview) error {
		return transitionTo(p, model.StatusPending)
	})
}

func (m *Memory) MarkCallStarted(_ context.Context, id uuid.UUID, stage model.Stage, at time.Time) error {
	return m.update(id, func(p *model.Preview) error {
		switch stage {
		case model.StageCall1:
			p.Call1StartedAt = &at
			p.Call2StartedAt = nil
			p.GeneratedConfig = nil
			p.FinalConfig = nil
		case model.StageCall2:
			p.Call2StartedAt = &at
			p.FinalConfig = nil
		default:
			return ErrInvalidTransition
		}
		return nil
	})
}

func (m *Memory) SaveGeneratedConfig(_ context.Context, id uuid.UUID, cfg json.RawMessage) error {
	return m.update(id, func(p *model.Preview) error {
		p.GeneratedConfig = append(json.RawMessage(nil), cfg...)
		return nil
	})
}

func (m *Memory) SaveFinalConfig(_ context.Context, id uuid.UUID, cfg json.RawMessage) error {
	return m.update(id, func(p *model.Preview) error {
		p.FinalConfig = append(json.RawMessage(nil), cfg...)
		return nil
	})
}

func (m *Memory) Complete(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(p *model.Preview) error {
		return transitionTo(p, model.StatusCompleted)
	})
}

func (m *Memory) Fail(_ context.Context, id uuid.UUID, message string) error {
	return m.update(id, func(p *model.Preview) error {
		if err := transitionTo(p, model.StatusError); err != nil {
			return err
		}
		p.ErrorMessage = message
		return nil
	})
}

func (m *Memory) Resume(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(p *model.Preview) error {
		if !jobs.CanResume(p.Status, model.StatusPending) {
			return ErrInvalidTransition
		}
		p.Status = model.StatusPending
		p.ErrorMessage = ""
		return nil
	})
}

func (m *Memory) ListByStatus(_ context.Context, statuses []model.Status, updatedBefore time.Time, limit int) ([]*model.Preview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[model.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*model.Preview
	for _, p := range m.previews {
		if !want[p.Status] {
			continue
		}
		if !updatedBefore.IsZero() && !p.UpdatedAt.Before(updatedBefore) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteExpiredPreviews(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.previews {
		if p.SiteID == nil && p.CreatedAt.Before(cutoff) {
			delete(m.previews, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ClaimPreview(_ context.Context, site model.Site) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.previews[site.PreviewID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.SiteID != nil {
		existing := *m.sites[*p.SiteID]
		return &existing, nil
	}
	if p.Status != model.StatusCompleted {
		return nil, ErrNotCompleted
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = m.now()
	}
	site.Config = append(json.RawMessage(nil), p.FinalConfig...)
	stored := site
	m.sites[site.ID] = &stored
	id := site.ID
	p.SiteID = &id
	p.UpdatedAt = m.now()
	return &site, nil
}

func (m *Memory) SlugTaken(_ context.Context, slug string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sites {
		if s.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}
