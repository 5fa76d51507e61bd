package transcriber

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake returns a fixed transcript and records every request.
type Fake struct {
	mu    sync.Mutex
	text  string
	err   error
	delay time.Duration
	calls []Request
	files []File
	// Hook, when set, runs at the start of each call.
	Hook func(Request)
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) SetText(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

func (f *Fake) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *Fake) Files() []File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]File(nil), f.files...)
}

func (f *Fake) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if f.Hook != nil {
		f.Hook(req)
	}
	if len(req.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	f.mu.Lock()
	samples := make([]int16, len(req.Samples))
	copy(samples, req.Samples)
	req.Samples = samples
	f.calls = append(f.calls, req)
	text, err, delay := f.text, f.err, f.delay
	f.mu.Unlock()

	return f.result(ctx, text, err, delay, req.Duration())
}

func (f *Fake) TranscribeFile(ctx context.Context, file File, _ string) (*Result, error) {
	f.mu.Lock()
	f.files = append(f.files, file)
	text, err, delay := f.text, f.err, f.delay
	f.mu.Unlock()

	return f.result(ctx, text, err, delay, 0)
}

func (f *Fake) result(ctx context.Context, text string, err error, delay time.Duration, dur float64) (*Result, error) {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fake transcriber error: %w", err)
	}
	return &Result{
		Text:     text,
		Segments: []Segment{{Text: text, End: dur}},
		Metrics:  &NetworkMetrics{Total: 10 * time.Millisecond},
		Duration: dur,
	}, nil
}
