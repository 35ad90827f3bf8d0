package http

import (
	"encoding/json"
	"time"

	"ottie/internal/model"
)

// ErrorResponse is the error envelope for every endpoint.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

type GeneratePreviewRequest struct {
	URL string `json:"url"`
}

type GeneratePreviewResponse struct {
	Success       bool   `json:"success"`
	PreviewID     string `json:"previewId"`
	QueuePosition int    `json:"queuePosition"`
}

type PreviewStatusResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	Phase         string `json:"phase"`
	QueuePosition *int   `json:"queuePosition"`
	Processing    bool   `json:"processing"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

type ClaimPreviewRequest struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
}

type ClaimPreviewResponse struct {
	Success bool   `json:"success"`
	SiteID  string `json:"siteId"`
	Slug    string `json:"slug"`
}

// PreviewItem is the record view returned by the debug operations. Raw
// captures are reported by size only.
type PreviewItem struct {
	ID               string          `json:"id"`
	ExternalURL      string          `json:"externalUrl"`
	Status           string          `json:"status"`
	SourceDomain     string          `json:"sourceDomain,omitempty"`
	RawHTMLBytes     int             `json:"rawHtmlBytes"`
	RawJSONBytes     int             `json:"rawJsonBytes"`
	GalleryHTMLBytes int             `json:"galleryHtmlBytes"`
	GalleryImageURLs []string        `json:"galleryImageUrls"`
	StructuredData   json.RawMessage `json:"structuredData,omitempty"`
	NormalizedText   string          `json:"normalizedText,omitempty"`
	Markdown         string          `json:"markdown,omitempty"`
	GeneratedConfig  json.RawMessage `json:"generatedConfig,omitempty"`
	FinalConfig      json.RawMessage `json:"finalConfig,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type DebugPreviewResponse struct {
	Success bool        `json:"success"`
	Step    string      `json:"step"`
	Preview PreviewItem `json:"preview"`
}

func previewItem(p *model.Preview) PreviewItem {
	return PreviewItem{
		ID:               p.ID.String(),
		ExternalURL:      p.ExternalURL,
		Status:           string(p.Status),
		SourceDomain:     p.SourceDomain,
		RawHTMLBytes:     len(p.RawHTML),
		RawJSONBytes:     len(p.RawJSON),
		GalleryHTMLBytes: len(p.GalleryRawHTML),
		GalleryImageURLs: p.GalleryImageURLs,
		StructuredData:   p.StructuredData,
		NormalizedText:   p.NormalizedText,
		Markdown:         p.Markdown,
		GeneratedConfig:  p.GeneratedConfig,
		FinalConfig:      p.FinalConfig,
		ErrorMessage:     p.ErrorMessage,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
