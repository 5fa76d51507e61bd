package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-transcribe"
)

// OpenAI talks to any OpenAI-compatible transcription endpoint. Pointing
// BaseURL at a self-hosted faster-whisper server works without a key.
type OpenAI struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	format string
}

func NewOpenAI(apiKey string, cfg Config) *OpenAI {
	base := cfg.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	apiURL := strings.TrimSuffix(base, "/") + "/audio/transcriptions"
	return &OpenAI{
		client: NewTracedClient(apiURL, cfg.Timeout),
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		format: cfg.Format,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Warm() { o.client.Warm() }

func (o *OpenAI) Transcribe(ctx context.Context, req Request) (*Result, error) {
	return upload(ctx, o.Name(), o.format, req, o.TranscribeFile)
}

func (o *OpenAI) TranscribeFile(ctx context.Context, f File, language string) (*Result, error) {
	req, err := multipartRequest(ctx, o.apiURL, f, map[string]string{
		"model":           o.model,
		"response_format": "json",
		"language":        language,
	})
	if err != nil {
		return nil, err
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      strings.TrimSpace(oResp.Text),
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}
