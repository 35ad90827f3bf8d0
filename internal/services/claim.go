package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"ottie/internal/model"
	"ottie/internal/scrapeutil"
	"ottie/internal/store"
)

const (
	maxSlugLen      = 60
	maxSlugAttempts = 50
)

// ClaimResult identifies the site created from a preview.
type ClaimResult struct {
	SiteID uuid.UUID `json:"siteId"`
	Slug   string    `json:"slug"`
}

// Claim turns a completed preview into a site owned by workspaceID.
// Membership of userID in the workspace is checked by the caller.
// Claiming an already claimed preview returns the existing site.
func (s *Previews) Claim(ctx context.Context, id uuid.UUID, workspaceID, userID string) (*ClaimResult, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	userID = strings.TrimSpace(userID)
	if workspaceID == "" || userID == "" {
		return nil, userErr("A workspace and user are required to claim a preview", nil)
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.SiteID == nil && (p.Status != model.StatusCompleted || len(p.FinalConfig) == 0) {
		return nil, userErr("This preview is not ready to be claimed yet", ErrNotReady)
	}

	slug := ""
	if p.SiteID == nil {
		slug, err = s.uniqueSlug(ctx, slugSource(p))
		if err != nil {
			return nil, err
		}
	}

	siteID, err := s.newID()
	if err != nil {
		return nil, err
	}
	site, err := s.store.ClaimPreview(ctx, model.Site{
		ID:          siteID,
		PreviewID:   id,
		WorkspaceID: workspaceID,
		UserID:      userID,
		Slug:        slug,
		CreatedAt:   s.now(),
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, userErr("Preview not found", ErrNotFound)
	case errors.Is(err, store.ErrNotCompleted):
		return nil, userErr("This preview is not ready to be claimed yet", ErrNotReady)
	case err != nil:
		return nil, userErr("Could not claim the preview, please try again", err)
	}

	s.logInfo("preview_claimed",
		"preview_id", id.String(),
		"site_id", site.ID.String(),
		"workspace_id", workspaceID,
		"slug", site.Slug,
	)
	return &ClaimResult{SiteID: site.ID, Slug: site.Slug}, nil
}

func (s *Previews) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		taken, err := s.store.SlugTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		suffix := fmt.Sprintf("-%d", i)
		candidate = strings.TrimRight(truncateSlug(base, maxSlugLen-len(suffix)), "-") + suffix
	}
	suffix := "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.TrimRight(truncateSlug(base, maxSlugLen-len(suffix)), "-") + suffix, nil
}

// slugSource prefers the generated title and falls back to the listing's
// host.
func slugSource(p *model.Preview) string {
	var cfg struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(p.FinalConfig, &cfg)
	if slug := Slugify(cfg.Title); slug != "" {
		return slug
	}
	host := strings.TrimPrefix(scrapeutil.HostOf(p.ExternalURL), "www.")
	if slug := Slugify(host); slug != "" {
		return slug
	}
	return "site"
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Slugify lowercases s, strips accents and keeps [a-z0-9-].
func Slugify(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.NewReplacer(" ", "-", "_", "-", ".", "-", "/", "-").Replace(folded)
	folded = slugInvalid.ReplaceAllString(folded, "")
	folded = slugDashes.ReplaceAllString(folded, "-")
	return strings.Trim(truncateSlug(strings.Trim(folded, "-"), maxSlugLen), "-")
}

func truncateSlug(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
