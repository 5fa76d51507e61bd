package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	deepgramBaseURL      = "https://api.deepgram.com/v1/listen"
	deepgramDefaultModel = "nova-3"
)

type Deepgram struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	format string
}

func NewDeepgram(apiKey string, cfg Config) *Deepgram {
	apiURL := cfg.BaseURL
	if apiURL == "" {
		apiURL = deepgramBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = deepgramDefaultModel
	}
	return &Deepgram{
		client: NewTracedClient("https://api.deepgram.com", cfg.Timeout),
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		format: cfg.Format,
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Warm() { d.client.Warm() }

func (d *Deepgram) Transcribe(ctx context.Context, req Request) (*Result, error) {
	return upload(ctx, d.Name(), d.format, req, d.TranscribeFile)
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
		Channels int     `json:"channels"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) endpoint(language string) string {
	q := url.Values{}
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	if language != "" {
		q.Set("language", language)
	}
	return d.apiURL + "?" + q.Encode()
}

func (d *Deepgram) TranscribeFile(ctx context.Context, f File, language string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(language), bytes.NewReader(f.Data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Token "+d.apiKey)
	if f.ContentType != "" {
		req.Header.Set("Content-Type", f.ContentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, &APIError{Provider: "deepgram", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var dgResp deepgramResponse
	if err := json.Unmarshal(resp.Body, &dgResp); err != nil {
		return nil, fmt.Errorf("deepgram response parse error: %w", err)
	}

	var text string
	var confidence float64
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		text = strings.TrimSpace(alt.Transcript)
		confidence = alt.Confidence
	}

	remaining := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-remaining", "x-ratelimit-remaining", "ratelimit-remaining")
	limit := firstNonEmpty(resp.Header,
		"x-dg-ratelimit-limit", "x-ratelimit-limit", "ratelimit-limit")

	return &Result{
		Text:       text,
		Metrics:    resp.Metrics,
		RateLimit:  remaining + "/" + limit,
		Confidence: confidence,
		Duration:   dgResp.Metadata.Duration,
	}, nil
}
