package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hark/encoder"
	"hark/metrics"
	"hark/sink"
	"hark/transcriber"
)

// samplesOnly transcribes decoded audio but not raw uploads.
type samplesOnly struct{ text string }

func (s samplesOnly) Name() string { return "local" }

func (s samplesOnly) Transcribe(context.Context, transcriber.Request) (*transcriber.Result, error) {
	return &transcriber.Result{Text: s.text}, nil
}

func upload(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/transcribe", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func wavClip(t *testing.T, rate, n int) []byte {
	t.Helper()
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 200)
	}
	data, err := encoder.Encode(encoder.FormatWAV, rate, samples)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	s := New(Config{Model: "small.en"}, transcriber.NewFake("", nil), nil, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != 200 || body["status"] != "ok" || body["model"] != "small.en" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestTranscribeWAV(t *testing.T) {
	tr := transcriber.NewFake("draw a database", nil)
	s := New(Config{Language: "en", BeamSize: 1}, tr, nil, metrics.New())

	resp, err := s.App().Test(upload(t, "audio", "clip.wav", wavClip(t, 8000, 4000)), -1)
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != 200 || body["success"] != true || body["transcript"] != "draw a database" {
		t.Fatalf("response = %d %v", resp.StatusCode, body)
	}

	calls := tr.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
	// 0.5 s at 8 kHz resampled to 16 kHz.
	if calls[0].SampleRate != 16000 || len(calls[0].Samples) != 8000 {
		t.Errorf("request = %d Hz, %d samples", calls[0].SampleRate, len(calls[0].Samples))
	}
	if calls[0].Language != "en" || calls[0].BeamSize != 1 {
		t.Errorf("request hints = %q %d", calls[0].Language, calls[0].BeamSize)
	}
}

func TestTranscribePassesThroughOtherFormats(t *testing.T) {
	tr := transcriber.NewFake("hello", nil)
	s := New(Config{Language: "en"}, tr, nil, nil)

	resp, err := s.App().Test(upload(t, "audio", "clip.webm", []byte("\x1a\x45\xdf\xa3webm")), -1)
	if err != nil {
		t.Fatal(err)
	}
	if body := decode(t, resp); resp.StatusCode != 200 || body["transcript"] != "hello" {
		t.Fatalf("response = %d %v", resp.StatusCode, body)
	}
	files := tr.Files()
	if len(files) != 1 || files[0].Name != "clip.webm" {
		t.Fatalf("files = %+v", files)
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name   string
		tr     transcriber.Transcriber
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name:   "no file",
			tr:     transcriber.NewFake("x", nil),
			req:    func(t *testing.T) *http.Request { return upload(t, "", "", nil) },
			status: http.StatusBadRequest,
		},
		{
			name:   "wrong field",
			tr:     transcriber.NewFake("x", nil),
			req:    func(t *testing.T) *http.Request { return upload(t, "file", "a.wav", wavClip(t, 16000, 10)) },
			status: http.StatusBadRequest,
		},
		{
			name:   "undecodable for local backend",
			tr:     samplesOnly{text: "x"},
			req:    func(t *testing.T) *http.Request { return upload(t, "audio", "a.webm", []byte("not audio")) },
			status: http.StatusUnsupportedMediaType,
		},
		{
			name:   "backend failure",
			tr:     transcriber.NewFake("", errors.New("model crashed")),
			req:    func(t *testing.T) *http.Request { return upload(t, "audio", "a.wav", wavClip(t, 16000, 1600)) },
			status: http.StatusInternalServerError,
		},
		{
			name:   "failure through wrappers",
			tr:     transcriber.Limit(transcriber.Instrument(transcriber.NewFake("", errors.New("down")), metrics.New()), 1),
			req:    func(t *testing.T) *http.Request { return upload(t, "audio", "a.ogg", []byte("OggS")) },
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{}, tt.tr, nil, nil)
			resp, err := s.App().Test(tt.req(t), -1)
			if err != nil {
				t.Fatal(err)
			}
			body := decode(t, resp)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.status, body)
			}
			if _, ok := body["error"].(string); !ok {
				t.Errorf("body has no error: %v", body)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	s := New(Config{}, transcriber.NewFake("", nil), nil, m)

	if _, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil)); err != nil {
		t.Fatal(err)
	}
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(data), `hark_http_requests_total{route="/health",status="200"} 1`) {
		t.Errorf("request not counted:\n%s", data)
	}
}

func TestLastRecord(t *testing.T) {
	hub := sink.NewHub()
	s := New(Config{}, transcriber.NewFake("", nil), hub, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/last", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d before any record", resp.StatusCode)
	}

	hub.Publish(context.Background(), sink.Record{ID: 1.5, Message: "hi"})
	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/last", nil))
	if err != nil {
		t.Fatal(err)
	}
	var rec sink.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.Message != "hi" || rec.ID != 1.5 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestEventsRequiresUpgrade(t *testing.T) {
	s := New(Config{}, transcriber.NewFake("", nil), sink.NewHub(), nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/events", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMetricsExportEventFeed(t *testing.T) {
	hub := sink.NewHub()
	_, cancel := hub.Subscribe()
	defer cancel()
	s := New(Config{}, transcriber.NewFake("", nil), hub, metrics.New())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"hark_event_subscribers 1", "hark_events_dropped_total 0"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("missing %q in:\n%s", want, data)
		}
	}
}
