package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ottie/internal/config"
	"ottie/internal/model"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// CompletionRequest is one system+user prompt pair. The generator asks
// for a single JSON object back.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the raw model output plus token usage.
type Completion struct {
	Content  string
	Usage    model.Usage
	Provider Provider
	Model    string
}

// Client is the abstraction used by the config generator.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ExtractJSONObject returns the JSON object in content. It first tries
// the whole string (minus a markdown code fence), then the outermost
// {...} block.
func ExtractJSONObject(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object found in content")
	}

	snippet := content[start : end+1]
	if !json.Valid([]byte(snippet)) {
		return nil, errors.New("model returned malformed JSON")
	}
	return json.RawMessage(snippet), nil
}

// NewClientFromConfig constructs a Client based on global config and optional
// provider/model overrides.
func NewClientFromConfig(cfg *config.Config, providerOverride, modelOverride string) (Client, Provider, string, error) {
	providerName := cfg.LLM.DefaultProvider
	if providerOverride != "" {
		providerName = providerOverride
	}

	prov := Provider(providerName)
	timeout := time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxTokens := cfg.LLM.MaxTokens

	switch prov {
	case ProviderOpenAI:
		openaiCfg := cfg.LLM.OpenAI
		modelName := openaiCfg.Model
		if modelOverride != "" {
			modelName = modelOverride
		}
		if openaiCfg.APIKey == "" || modelName == "" {
			return nil, prov, modelName, errors.New("openai llm provider is not fully configured")
		}
		return &openAIClient{
			apiKey:    openaiCfg.APIKey,
			baseURL:   openaiCfg.BaseURL,
			model:     modelName,
			maxTokens: maxTokens,
			http:      &http.Client{Timeout: timeout},
		}, prov, modelName, nil
	case ProviderAnthropic:
		anthCfg := cfg.LLM.Anthropic
		modelName := anthCfg.Model
		if modelOverride != "" {
			modelName = modelOverride
		}
		if anthCfg.APIKey == "" || modelName == "" {
			return nil, prov, modelName, errors.New("anthropic llm provider is not fully configured")
		}
		return &anthropicClient{
			apiKey:    anthCfg.APIKey,
			model:     modelName,
			maxTokens: maxTokens,
			http:      &http.Client{Timeout: timeout},
		}, prov, modelName, nil
	case ProviderGoogle:
		googleCfg := cfg.LLM.Google
		modelName := googleCfg.Model
		if modelOverride != "" {
			modelName = modelOverride
		}
		if googleCfg.APIKey == "" || modelName == "" {
			return nil, prov, modelName, errors.New("google llm provider is not fully configured")
		}
		return &googleClient{
			apiKey:    googleCfg.APIKey,
			model:     modelName,
			maxTokens: maxTokens,
			http:      &http.Client{Timeout: timeout},
		}, prov, modelName, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported llm provider: %s", providerName)
	}
}

// openAIClient implements Client using OpenAI-compatible Chat Completions.
type openAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	apiKey    string
	endpoint  string
	model     string
	maxTokens int
	http      *http.Client
}

// googleClient implements Client using Google Gemini (Generative Language API).
type googleClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

// openAIChatRequest is a minimal representation of the Chat Completions API.
type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// anthropicMessagesRequest & response are minimal shapes for Anthropic's Messages API.
type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// googleGenerateContentRequest & response are minimal shapes for Gemini's generateContent.
type googleGenerateContentRequest struct {
	SystemInstruction *googleContent        `json:"systemInstruction,omitempty"`
	Contents          []googleContent       `json:"contents"`
	GenerationConfig  *googleGenerationConf `json:"generationConfig,omitempty"`
}

type googleGenerationConf struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (c *openAIClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	body := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature:    0.2,
		MaxTokens:      pickMaxTokens(req.MaxTokens, c.maxTokens),
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = strings.TrimRight(endpoint, "/") + "/chat/completions"

	var parsed openAIChatResponse
	err := postJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, "openai chat completion", &parsed)
	if err != nil {
		return Completion{}, err
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, errors.New("openai chat completion returned no choices")
	}

	return Completion{
		Content: parsed.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
		Provider: ProviderOpenAI,
		Model:    c.model,
	}, nil
}

// Complete for anthropicClient uses Anthropic's Messages API.
func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	body := anthropicMessagesRequest{
		Model:     c.model,
		MaxTokens: pickMaxTokens(req.MaxTokens, c.maxTokens),
		System:    req.System,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicTextContent{
					{Type: "text", Text: req.Prompt},
				},
			},
		},
	}

	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}

	var parsed anthropicMessagesResponse
	err := postJSON(ctx, c.http, endpoint, body, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, "anthropic messages request", &parsed)
	if err != nil {
		return Completion{}, err
	}
	if len(parsed.Content) == 0 {
		return Completion{}, errors.New("anthropic messages returned no content")
	}

	var sb strings.Builder
	for _, part := range parsed.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}

	return Completion{
		Content: sb.String(),
		Usage: model.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		Provider: ProviderAnthropic,
		Model:    c.model,
	}, nil
}

// Complete for googleClient uses Gemini's generateContent API.
func (c *googleClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	body := googleGenerateContentRequest{
		Contents: []googleContent{
			{
				Role:  "user",
				Parts: []googlePart{{Text: req.Prompt}},
			},
		},
		GenerationConfig: &googleGenerationConf{
			ResponseMimeType: "application/json",
			MaxOutputTokens:  pickMaxTokens(req.MaxTokens, c.maxTokens),
		},
	}
	if req.System != "" {
		body.SystemInstruction = &googleContent{Parts: []googlePart{{Text: req.System}}}
	}

	base := c.baseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, c.model, url.QueryEscape(c.apiKey))

	var parsed googleGenerateContentResponse
	if err := postJSON(ctx, c.http, endpoint, body, nil, "google generateContent", &parsed); err != nil {
		return Completion{}, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return Completion{}, errors.New("google generateContent returned no candidates")
	}

	// Concatenate all parts' text for simplicity.
	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return Completion{
		Content: sb.String(),
		Usage: model.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
		},
		Provider: ProviderGoogle,
		Model:    c.model,
	}, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any, headers map[string]string, what string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s failed with status %d", what, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func pickMaxTokens(req, def int) int {
	if req > 0 {
		return req
	}
	if def > 0 {
		return def
	}
	return 4096
}
