package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	ErrEmptyAudio  = errors.New("no audio to transcribe")
	ErrUnsupported = errors.New("provider cannot transcribe raw files")
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Segment struct {
	Text         string
	Start        float64
	End          float64
	NoSpeechProb float64
	AvgLogProb   float64
}

type Result struct {
	Text         string
	Segments     []Segment
	Metrics      *NetworkMetrics
	RateLimit    string
	Confidence   float64
	NoSpeechProb float64
	Duration     float64
}

// Request is one mono utterance of signed 16-bit samples.
type Request struct {
	Samples    []int16
	SampleRate int
	Language   string
	BeamSize   int
}

func (r Request) Duration() float64 {
	if r.SampleRate == 0 {
		return 0
	}
	return float64(len(r.Samples)) / float64(r.SampleRate)
}

// File is an encoded recording in a container the provider decodes itself.
type File struct {
	Data        []byte
	Name        string
	ContentType string
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// FileTranscriber is implemented by providers that accept encoded uploads
// such as webm or mp3 directly.
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, f File, language string) (*Result, error)
}

// AcceptsFiles reports whether t, through any wrappers, takes raw uploads.
func AcceptsFiles(t Transcriber) bool {
	if a, ok := t.(interface{ AcceptsFiles() bool }); ok {
		return a.AcceptsFiles()
	}
	_, ok := t.(FileTranscriber)
	return ok
}

// Warm pre-opens the provider connection behind t, through any wrappers,
// so the upload after a mute skips the TLS handshake. Local backends have
// nothing to warm.
func Warm(t Transcriber) {
	if w, ok := t.(interface{ Warm() }); ok {
		w.Warm()
	}
}

// APIError is a non-2xx answer from a hosted provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// JoinSegments concatenates segment texts with single spaces.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

type Config struct {
	Provider string // auto, groq, openai, deepgram, whisper, fake
	Model    string
	BaseURL  string
	Format   string // flac or wav upload encoding
	Timeout  time.Duration
	// WhisperModel is the path to a ggml model for the local provider.
	WhisperModel string
	// FakeText is returned by the fake provider.
	FakeText string
}

// New builds the configured provider. With Provider "auto" the first API key
// found in the environment wins, falling back to a local whisper model.
func New(cfg Config) (Transcriber, error) {
	provider := cfg.Provider
	if provider == "" || provider == "auto" {
		provider = detectProvider(cfg)
	}

	switch provider {
	case "groq":
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, errors.New("GROQ_API_KEY is not set")
		}
		return NewGroq(key, cfg), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" && cfg.BaseURL == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return NewOpenAI(key, cfg), nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, errors.New("DEEPGRAM_API_KEY is not set")
		}
		return NewDeepgram(key, cfg), nil
	case "whisper":
		path := cfg.WhisperModel
		if path == "" {
			path = os.Getenv("HARK_WHISPER_MODEL")
		}
		if path == "" {
			return nil, errors.New("whisper provider needs a model path (HARK_WHISPER_MODEL)")
		}
		w, err := NewWhisper(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "fake":
		return NewFake(cfg.FakeText, nil), nil
	case "":
		return nil, errors.New("set GROQ_API_KEY, OPENAI_API_KEY, DEEPGRAM_API_KEY or HARK_WHISPER_MODEL")
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", provider)
	}
}

func detectProvider(cfg Config) string {
	switch {
	case os.Getenv("GROQ_API_KEY") != "":
		return "groq"
	case os.Getenv("OPENAI_API_KEY") != "":
		return "openai"
	case os.Getenv("DEEPGRAM_API_KEY") != "":
		return "deepgram"
	case cfg.WhisperModel != "" || os.Getenv("HARK_WHISPER_MODEL") != "":
		return "whisper"
	}
	return ""
}
