package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"hark/metrics"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestJoinSegments(t *testing.T) {
	got := JoinSegments([]Segment{{Text: " hello"}, {Text: "  "}, {Text: "world. "}})
	if got != "hello world." {
		t.Errorf("JoinSegments = %q", got)
	}
}

func tone(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i % 1000)
	}
	return s
}

func TestGroqTranscribe(t *testing.T) {
	var gotAuth, gotModel, gotFormat, gotLang, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotLang = r.FormValue("language")
		_, hdr, err := r.FormFile("file")
		if err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		io.WriteString(w, `{"text":" hello world ","duration":1.5,"segments":[
			{"text":" hello","start":0,"end":0.7,"no_speech_prob":0.1},
			{"text":" world","start":0.7,"end":1.5,"no_speech_prob":0.3}]}`)
	}))
	defer srv.Close()

	g := NewGroq("secret", Config{BaseURL: srv.URL})
	res, err := g.Transcribe(context.Background(), Request{Samples: tone(16000), SampleRate: 16000, Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != groqDefaultModel || gotFormat != "verbose_json" || gotLang != "en" {
		t.Errorf("form = model %q format %q language %q", gotModel, gotFormat, gotLang)
	}
	if gotFile != "audio.flac" {
		t.Errorf("file name = %q, want audio.flac", gotFile)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q", res.Text)
	}
	if len(res.Segments) != 2 || res.NoSpeechProb != 0.3 {
		t.Errorf("segments = %d, no_speech = %v", len(res.Segments), res.NoSpeechProb)
	}
	if res.RateLimit != "9/10" {
		t.Errorf("RateLimit = %q", res.RateLimit)
	}
}

func TestGroqAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	g := NewGroq("k", Config{BaseURL: srv.URL})
	_, err := g.Transcribe(context.Background(), Request{Samples: tone(100), SampleRate: 16000})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 429 || !apiErr.Temporary() {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "slow down") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestOpenAICompatibleWithoutKey(t *testing.T) {
	var gotAuth, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		io.WriteString(w, `{"text":"draw a box"}`)
	}))
	defer srv.Close()

	o := NewOpenAI("", Config{BaseURL: srv.URL + "/v1", Format: "wav", Model: "small.en"})
	res, err := o.Transcribe(context.Background(), Request{Samples: tone(800), SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization sent without key: %q", gotAuth)
	}
	if gotFile != "audio.wav" {
		t.Errorf("file = %q, want audio.wav", gotFile)
	}
	if res.Text != "draw a box" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDeepgramTranscribeFile(t *testing.T) {
	var gotQuery, gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		io.WriteString(w, `{"metadata":{"duration":2.0},"results":{"channels":[{"alternatives":[{"transcript":"add a database","confidence":0.93}]}]}}`)
	}))
	defer srv.Close()

	d := NewDeepgram("dg", Config{BaseURL: srv.URL})
	res, err := d.TranscribeFile(context.Background(), File{Data: []byte("webm"), ContentType: "audio/webm"}, "en")
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if gotAuth != "Token dg" || gotType != "audio/webm" {
		t.Errorf("headers = %q %q", gotAuth, gotType)
	}
	if !strings.Contains(gotQuery, "model=nova-3") || !strings.Contains(gotQuery, "language=en") {
		t.Errorf("query = %q", gotQuery)
	}
	if res.Text != "add a database" || res.Confidence != 0.93 || res.Duration != 2.0 {
		t.Errorf("result = %+v", res)
	}
}

func TestUploadRejectsEmpty(t *testing.T) {
	g := NewGroq("k", Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := g.Transcribe(context.Background(), Request{}); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestLimitSerializes(t *testing.T) {
	fake := NewFake("ok", nil)
	var cur, peak atomic.Int32
	fake.Hook = func(Request) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
	}
	l := Limit(fake, 1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Transcribe(context.Background(), Request{Samples: tone(10), SampleRate: 16000}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
	if len(fake.Calls()) != 8 {
		t.Errorf("calls = %d, want 8", len(fake.Calls()))
	}
}

func TestLimitHonoursContext(t *testing.T) {
	fake := NewFake("ok", nil)
	fake.SetDelay(time.Second)
	l := Limit(fake, 1)

	go l.Transcribe(context.Background(), Request{Samples: tone(10), SampleRate: 16000})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Transcribe(ctx, Request{Samples: tone(10), SampleRate: 16000}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

type samplesOnly struct{}

func (samplesOnly) Name() string { return "samples-only" }
func (samplesOnly) Transcribe(context.Context, Request) (*Result, error) {
	return &Result{Text: "x"}, nil
}

func TestAcceptsFilesThroughWrappers(t *testing.T) {
	m := metrics.New()
	if !AcceptsFiles(Limit(Instrument(NewFake("", nil), m), 1)) {
		t.Error("fake behind wrappers should accept files")
	}
	wrapped := Limit(Instrument(samplesOnly{}, m), 1)
	if AcceptsFiles(wrapped) {
		t.Error("samples-only provider reported file support")
	}
	if _, err := wrapped.TranscribeFile(context.Background(), File{}, ""); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestWarmThroughWrappers(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
	}))
	defer srv.Close()

	g := NewGroq("key", Config{BaseURL: srv.URL})
	Warm(Limit(Instrument(g, metrics.New()), 1))
	if got := heads.Load(); got != 1 {
		t.Errorf("HEAD requests = %d, want 1", got)
	}

	// Nothing to warm, must not panic.
	Warm(Limit(Instrument(NewFake("", nil), metrics.New()), 1))
}

func TestInstrumentCountsFailures(t *testing.T) {
	m := metrics.New()
	fake := NewFake("", errors.New("boom"))
	tr := Instrument(fake, m)

	if _, err := tr.Transcribe(context.Background(), Request{Samples: tone(10), SampleRate: 16000}); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.TranscriptionFailures.WithLabelValues("fake")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	for _, k := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "DEEPGRAM_API_KEY", "HARK_WHISPER_MODEL"} {
		t.Setenv(k, "")
	}

	if _, err := New(Config{Provider: "auto"}); err == nil {
		t.Error("expected error with no keys")
	}

	t.Setenv("DEEPGRAM_API_KEY", "dg")
	tr, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "deepgram" {
		t.Errorf("auto picked %q, want deepgram", tr.Name())
	}

	t.Setenv("GROQ_API_KEY", "g")
	tr, err = New(Config{Provider: "auto"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "groq" {
		t.Errorf("auto picked %q, want groq", tr.Name())
	}

	if _, err := New(Config{Provider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	tr, err = New(Config{Provider: "fake", FakeText: "hi"})
	if err != nil || tr.Name() != "fake" {
		t.Errorf("fake provider: %v %v", tr, err)
	}
}
