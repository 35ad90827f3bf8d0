// Package configgen turns normalized listing content into a site config
// with two sequential LLM calls: Call 1 builds the full config, Call 2
// refines its title and highlights.
package configgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ottie/internal/llm"
	"ottie/internal/metrics"
	"ottie/internal/model"
)

var (
	// ErrNoInput means Call 1 has no normalized text to work from.
	ErrNoInput = errors.New("no listing content to generate from")
	// ErrNoConfig means Call 2 has no Call 1 config to refine.
	ErrNoConfig = errors.New("no generated config to refine")
)

// Call1Input is the listing content for Call 1.
type Call1Input struct {
	URL string
	// Text is normalized page text or formatted structured JSON.
	Text string
	// Structured is true when Text came from a JSON scraper.
	Structured bool
	// Photos are gallery images extracted from the page, if any.
	Photos []string
}

// StageResult is the output of one call, with _metadata attached.
type StageResult struct {
	Config      json.RawMessage
	StartedAt   time.Time
	CompletedAt time.Time
	Usage       model.Usage
}

// Generator runs Call 1 and Call 2 against one LLM client.
type Generator struct {
	client   llm.Client
	provider llm.Provider
	model    string
	logger   *slog.Logger
	now      func() time.Time
}

func New(client llm.Client, provider llm.Provider, modelName string, logger *slog.Logger) *Generator {
	return &Generator{
		client:   client,
		provider: provider,
		model:    modelName,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) logInfo(msg string, args ...any) {
	if g == nil || g.logger == nil {
		return
	}
	g.logger.Info(msg, args...)
}

// Call1 generates the full config. The result carries call1_* metadata
// and nothing about Call 2.
func (g *Generator) Call1(ctx context.Context, in Call1Input) (*StageResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrNoInput
	}

	started := g.now()
	out, err := g.client.Complete(ctx, llm.CompletionRequest{
		System: call1SystemPrompt(),
		Prompt: call1UserPrompt(in),
	})
	if err != nil {
		metrics.RecordLLMCall(string(model.StageCall1), string(g.provider), g.model, false, 0)
		return nil, fmt.Errorf("call 1 failed: %w", err)
	}

	raw, err := llm.ExtractJSONObject(out.Content)
	if err != nil {
		metrics.RecordLLMCall(string(model.StageCall1), string(g.provider), g.model, false, out.Usage.TotalTokens)
		return nil, fmt.Errorf("call 1 returned an unusable config: %w", err)
	}
	obj, err := decodeObject(raw)
	if err != nil {
		metrics.RecordLLMCall(string(model.StageCall1), string(g.provider), g.model, false, out.Usage.TotalTokens)
		return nil, fmt.Errorf("call 1 returned an unusable config: %w", err)
	}
	obj.Delete(metadataKey)
	capHighlights(obj)
	if len(in.Photos) > 0 && !hasPhotos(obj) {
		photos := make([]any, len(in.Photos))
		for i, p := range in.Photos {
			photos[i] = p
		}
		obj.Set("photos", photos)
	}

	completed := g.now()
	md := model.StageMetadata{
		Call1StartedAt:   &started,
		Call1CompletedAt: &completed,
		Call1DurationMs:  completed.Sub(started).Milliseconds(),
		Call1Usage:       &out.Usage,
		Call1Provider:    string(g.provider),
		Call1Model:       g.model,
	}
	cfg, err := withMetadata(obj, md)
	if err != nil {
		return nil, err
	}

	metrics.RecordLLMCall(string(model.StageCall1), string(g.provider), g.model, true, out.Usage.TotalTokens)
	g.logInfo("config_call1_completed",
		"provider", g.provider,
		"model", g.model,
		"duration_ms", md.Call1DurationMs,
		"total_tokens", out.Usage.TotalTokens,
	)

	return &StageResult{Config: cfg, StartedAt: started, CompletedAt: completed, Usage: out.Usage}, nil
}

// hasPhotos reports whether the model returned at least one photo URL.
func hasPhotos(obj Object) bool {
	v, ok := obj.Get("photos")
	if !ok {
		return false
	}
	list, ok := v.([]any)
	return ok && len(list) > 0
}

// refinement is the Call 2 output shape.
type refinement struct {
	Title      string      `json:"title"`
	Highlights []Highlight `json:"highlights"`
}

// Highlight is one icon and label pair.
type Highlight struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
}

// Call2 refines title and highlights of generated. Every other field of
// generated is kept as-is; its call1 metadata is carried over.
func (g *Generator) Call2(ctx context.Context, generated json.RawMessage) (*StageResult, error) {
	if len(generated) == 0 {
		return nil, ErrNoConfig
	}
	projection, err := Projection(generated)
	if err != nil {
		return nil, fmt.Errorf("generated config is unreadable: %w", err)
	}

	started := g.now()
	out, err := g.client.Complete(ctx, llm.CompletionRequest{
		System: call2SystemPrompt(),
		Prompt: projection,
	})
	if err != nil {
		metrics.RecordLLMCall(string(model.StageCall2), string(g.provider), g.model, false, 0)
		return nil, fmt.Errorf("call 2 failed: %w", err)
	}

	raw, err := llm.ExtractJSONObject(out.Content)
	var ref refinement
	if err == nil {
		err = json.Unmarshal(raw, &ref)
	}
	if err != nil {
		metrics.RecordLLMCall(string(model.StageCall2), string(g.provider), g.model, false, out.Usage.TotalTokens)
		return nil, fmt.Errorf("call 2 returned an unusable refinement: %w", err)
	}

	merged, err := MergeRefinement(generated, ref.Title, ref.Highlights)
	if err != nil {
		return nil, err
	}

	completed := g.now()
	md := model.ReadMetadata(generated)
	md.Call2StartedAt = &started
	md.Call2CompletedAt = &completed
	md.Call2DurationMs = completed.Sub(started).Milliseconds()
	md.Call2Usage = &out.Usage
	md.Call2Provider = string(g.provider)
	md.Call2Model = g.model

	cfg, err := withMetadata(merged, md)
	if err != nil {
		return nil, err
	}

	metrics.RecordLLMCall(string(model.StageCall2), string(g.provider), g.model, true, out.Usage.TotalTokens)
	g.logInfo("config_call2_completed",
		"provider", g.provider,
		"model", g.model,
		"duration_ms", md.Call2DurationMs,
		"total_tokens", out.Usage.TotalTokens,
	)

	return &StageResult{Config: cfg, StartedAt: started, CompletedAt: completed, Usage: out.Usage}, nil
}

// MergeRefinement overlays title and highlights onto generated. An empty
// title or highlight list leaves the Call 1 value in place.
func MergeRefinement(generated json.RawMessage, title string, highlights []Highlight) (Object, error) {
	obj, err := decodeObject(generated)
	if err != nil {
		return nil, fmt.Errorf("generated config is unreadable: %w", err)
	}
	if t := strings.TrimSpace(title); t != "" {
		obj.Set("title", t)
	}

	list := make([]any, 0, MaxHighlights)
	for _, h := range highlights {
		label := strings.TrimSpace(h.Label)
		if label == "" {
			continue
		}
		item := newObject()
		item.Set("icon", strings.TrimSpace(h.Icon))
		item.Set("label", label)
		list = append(list, item)
		if len(list) == MaxHighlights {
			break
		}
	}
	if len(list) > 0 {
		obj.Set("highlights", list)
	}
	return obj, nil
}

// withMetadata attaches md under "_metadata" and sorts keys.
func withMetadata(obj Object, md model.StageMetadata) (json.RawMessage, error) {
	mdRaw, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	obj.Set(metadataKey, json.RawMessage(mdRaw))
	return json.Marshal(reorder(obj, sampleObject))
}
