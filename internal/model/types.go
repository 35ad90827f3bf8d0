package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the coarse lifecycle state persisted on a preview record.
// Values match the text stored in previews.status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusScraping  Status = "scraping"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Stage names an LLM call in the config pipeline.
type Stage string

const (
	StageCall1 Stage = "call1"
	StageCall2 Stage = "call2"
)

// Usage is LLM token usage as recorded in config metadata.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// StageMetadata is the `_metadata` object attached to generated configs.
// It is the only record of LLM progress; phase derivation reads it.
type StageMetadata struct {
	Call1StartedAt   *time.Time `json:"call1_started_at,omitempty"`
	Call1CompletedAt *time.Time `json:"call1_completed_at,omitempty"`
	Call1DurationMs  int64      `json:"call1_duration_ms,omitempty"`
	Call1Usage       *Usage     `json:"call1_usage,omitempty"`
	Call1Provider    string     `json:"call1_provider,omitempty"`
	Call1Model       string     `json:"call1_model,omitempty"`

	Call2StartedAt   *time.Time `json:"call2_started_at,omitempty"`
	Call2CompletedAt *time.Time `json:"call2_completed_at,omitempty"`
	Call2DurationMs  int64      `json:"call2_duration_ms,omitempty"`
	Call2Usage       *Usage     `json:"call2_usage,omitempty"`
	Call2Provider    string     `json:"call2_provider,omitempty"`
	Call2Model       string     `json:"call2_model,omitempty"`
}

// MetadataKey is the reserved key holding StageMetadata inside a config.
const MetadataKey = "_metadata"

// Preview is one in-flight or completed generation, keyed by ID from
// submission through every downstream write.
type Preview struct {
	ID           uuid.UUID
	ExternalURL  string
	Status       Status
	SourceDomain string

	// Raw capture, written once by the scrape step.
	RawHTML        string
	RawJSON        json.RawMessage
	GalleryRawHTML string

	// GalleryImageURLs is nil until gallery extraction has run.
	GalleryImageURLs []string
	StructuredData   json.RawMessage
	CleanedHTML      string
	NormalizedText   string
	Markdown         string

	GeneratedConfig json.RawMessage
	FinalConfig     json.RawMessage

	// Call start markers. Completion lives in the configs' _metadata.
	Call1StartedAt *time.Time
	Call2StartedAt *time.Time

	ErrorMessage string

	// ClaimedAt is when the worker took the job off the queue.
	ClaimedAt *time.Time
	SiteID    *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Capture is the output of the scrape step.
type Capture struct {
	RawHTML        string
	RawJSON        json.RawMessage
	GalleryRawHTML string
}

// Extraction is the output of cleaning, structured-data extraction and
// text normalization.
type Extraction struct {
	StructuredData json.RawMessage
	CleanedHTML    string
	NormalizedText string
	Markdown       string
}

// Site is the persistent site created when a completed preview is
// claimed into a workspace.
type Site struct {
	ID          uuid.UUID
	PreviewID   uuid.UUID
	WorkspaceID string
	UserID      string
	Slug        string
	Config      json.RawMessage
	CreatedAt   time.Time
}

// ReadMetadata decodes the _metadata object from a config document.
// A missing or malformed object yields zero metadata.
func ReadMetadata(cfg json.RawMessage) StageMetadata {
	var md StageMetadata
	if len(cfg) == 0 {
		return md
	}
	var wrapper struct {
		Metadata *StageMetadata `json:"_metadata"`
	}
	if err := json.Unmarshal(cfg, &wrapper); err != nil || wrapper.Metadata == nil {
		return md
	}
	return *wrapper.Metadata
}

// Metadata merges the metadata recorded on the generated config (Call 1)
// and the final config (Call 2). The final config wins where both carry
// a key.
func (p *Preview) Metadata() StageMetadata {
	md := ReadMetadata(p.GeneratedConfig)
	final := ReadMetadata(p.FinalConfig)
	if final.Call1CompletedAt != nil {
		md.Call1StartedAt = final.Call1StartedAt
		md.Call1CompletedAt = final.Call1CompletedAt
		md.Call1DurationMs = final.Call1DurationMs
		md.Call1Usage = final.Call1Usage
		md.Call1Provider = final.Call1Provider
		md.Call1Model = final.Call1Model
	}
	if final.Call2CompletedAt != nil {
		md.Call2StartedAt = final.Call2StartedAt
		md.Call2CompletedAt = final.Call2CompletedAt
		md.Call2DurationMs = final.Call2DurationMs
		md.Call2Usage = final.Call2Usage
		md.Call2Provider = final.Call2Provider
		md.Call2Model = final.Call2Model
	}
	return md
}

// Clone returns a deep copy so stores can hand out records without
// sharing mutable slices.
func (p *Preview) Clone() *Preview {
	if p == nil {
		return nil
	}
	c := *p
	c.RawJSON = cloneRaw(p.RawJSON)
	c.StructuredData = cloneRaw(p.StructuredData)
	c.GeneratedConfig = cloneRaw(p.GeneratedConfig)
	c.FinalConfig = cloneRaw(p.FinalConfig)
	if p.GalleryImageURLs != nil {
		c.GalleryImageURLs = append([]string{}, p.GalleryImageURLs...)
	}
	c.Call1StartedAt = cloneTime(p.Call1StartedAt)
	c.Call2StartedAt = cloneTime(p.Call2StartedAt)
	c.ClaimedAt = cloneTime(p.ClaimedAt)
	if p.SiteID != nil {
		id := *p.SiteID
		c.SiteID = &id
	}
	return &c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage{}, r...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
