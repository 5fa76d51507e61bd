package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "whisper-large-v3-turbo"
)

type Groq struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	format string
}

func NewGroq(apiKey string, cfg Config) *Groq {
	base := cfg.BaseURL
	if base == "" {
		base = groqBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = groqDefaultModel
	}
	apiURL := strings.TrimSuffix(base, "/") + "/audio/transcriptions"
	return &Groq{
		client: NewTracedClient(apiURL, cfg.Timeout),
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		format: cfg.Format,
	}
}

func (g *Groq) Name() string { return "groq" }

// Warm pre-opens the TLS connection.
func (g *Groq) Warm() { g.client.Warm() }

func (g *Groq) Transcribe(ctx context.Context, req Request) (*Result, error) {
	return upload(ctx, g.Name(), g.format, req, g.TranscribeFile)
}

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (g *Groq) TranscribeFile(ctx context.Context, f File, language string) (*Result, error) {
	req, err := multipartRequest(ctx, g.apiURL, f, map[string]string{
		"model":           g.model,
		"response_format": "verbose_json",
		"temperature":     "0",
		"language":        language,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq request: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, &APIError{Provider: "groq", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	var noSpeechProb float64
	var segments []Segment
	for _, seg := range gResp.Segments {
		noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
		segments = append(segments, Segment{
			Text:         seg.Text,
			Start:        seg.Start,
			End:          seg.End,
			NoSpeechProb: seg.NoSpeechProb,
			AvgLogProb:   seg.AvgLogProb,
		})
	}

	text := strings.TrimSpace(gResp.Text)
	if text == "" && len(segments) > 0 {
		text = JoinSegments(segments)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:         text,
		Segments:     segments,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeechProb,
		Duration:     gResp.Duration,
	}, nil
}
