package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReadMetadata_MissingOrMalformed(t *testing.T) {
	if md := ReadMetadata(nil); md.Call1CompletedAt != nil {
		t.Fatalf("expected zero metadata for nil config")
	}
	if md := ReadMetadata(json.RawMessage(`{"title":"x"}`)); md.Call1StartedAt != nil {
		t.Fatalf("expected zero metadata when _metadata is absent")
	}
	if md := ReadMetadata(json.RawMessage(`not json`)); md.Call2CompletedAt != nil {
		t.Fatalf("expected zero metadata for malformed config")
	}
}

func TestPreviewMetadata_MergesFinalOverGenerated(t *testing.T) {
	t1 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(10 * time.Second)
	t3 := t2.Add(5 * time.Second)

	gen, _ := json.Marshal(map[string]any{
		"title": "a",
		"_metadata": StageMetadata{
			Call1StartedAt:   &t1,
			Call1CompletedAt: &t2,
			Call1DurationMs:  10000,
		},
	})
	final, _ := json.Marshal(map[string]any{
		"title": "b",
		"_metadata": StageMetadata{
			Call1StartedAt:   &t1,
			Call1CompletedAt: &t2,
			Call1DurationMs:  10000,
			Call2StartedAt:   &t2,
			Call2CompletedAt: &t3,
			Call2DurationMs:  5000,
		},
	})

	p := &Preview{GeneratedConfig: gen, FinalConfig: final}
	md := p.Metadata()
	if md.Call1CompletedAt == nil || !md.Call1CompletedAt.Equal(t2) {
		t.Fatalf("call1_completed_at = %v, want %v", md.Call1CompletedAt, t2)
	}
	if md.Call2CompletedAt == nil || !md.Call2CompletedAt.Equal(t3) {
		t.Fatalf("call2_completed_at = %v, want %v", md.Call2CompletedAt, t3)
	}
	if md.Call2DurationMs != 5000 {
		t.Fatalf("call2_duration_ms = %d, want 5000", md.Call2DurationMs)
	}
}

func TestPreviewClone_IsDeep(t *testing.T) {
	now := time.Now()
	p := &Preview{
		GalleryImageURLs: []string{"a"},
		RawJSON:          json.RawMessage(`{"a":1}`),
		Call1StartedAt:   &now,
	}
	c := p.Clone()
	c.GalleryImageURLs[0] = "b"
	c.RawJSON[2] = 'b'
	*c.Call1StartedAt = now.Add(time.Hour)

	if p.GalleryImageURLs[0] != "a" || string(p.RawJSON) != `{"a":1}` || !p.Call1StartedAt.Equal(now) {
		t.Fatalf("clone shares memory with original")
	}
	if (&Preview{}).Clone().GalleryImageURLs != nil {
		t.Fatalf("nil gallery must stay nil after clone")
	}
}
