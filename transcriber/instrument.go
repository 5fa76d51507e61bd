package transcriber

import (
	"context"
	"time"

	"hark/metrics"
)

// Instrumented records latency and failures of every call.
type Instrumented struct {
	Transcriber
	m *metrics.Metrics
}

func Instrument(t Transcriber, m *metrics.Metrics) Transcriber {
	if m == nil {
		return t
	}
	return &Instrumented{Transcriber: t, m: m}
}

func (i *Instrumented) observe(start time.Time, err error) {
	name := i.Transcriber.Name()
	i.m.TranscriptionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		i.m.TranscriptionFailures.WithLabelValues(name).Inc()
	}
}

func (i *Instrumented) Transcribe(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	r, err := i.Transcriber.Transcribe(ctx, req)
	i.observe(start, err)
	return r, err
}

func (i *Instrumented) TranscribeFile(ctx context.Context, f File, language string) (*Result, error) {
	ft, ok := i.Transcriber.(FileTranscriber)
	if !ok {
		return nil, ErrUnsupported
	}
	start := time.Now()
	r, err := ft.TranscribeFile(ctx, f, language)
	i.observe(start, err)
	return r, err
}

func (i *Instrumented) AcceptsFiles() bool { return AcceptsFiles(i.Transcriber) }

func (i *Instrumented) Warm() { Warm(i.Transcriber) }
