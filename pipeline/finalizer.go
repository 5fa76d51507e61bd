package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hark/actions"
	"hark/audio"
	"hark/log"
	"hark/metrics"
	"hark/sink"
	"hark/transcriber"
)

var ErrClosed = errors.New("finalizer closed")

type FinalizerConfig struct {
	SampleRate int
	Channels   int
	Language   string
	BeamSize   int
	// Timeout bounds one transcription plus action generation; 0 means none.
	Timeout time.Duration
	// Backlog is how many utterances may wait for the worker.
	Backlog int
}

// Outcome reports what happened to one utterance.
type Outcome struct {
	Gen    uint64
	AudioS float64
	Text   string
	Record *sink.Record
	Err    error
	// Took is the wall time from dequeue to publish.
	Took time.Duration
	// Net holds request timings from hosted providers.
	Net *transcriber.NetworkMetrics
}

// Finalizer turns taken utterances into published records on a dedicated
// worker goroutine, so a slow or failing transcription never holds up
// capture or toggling. Errors end the utterance, not the pipeline.
type Finalizer struct {
	cfg     FinalizerConfig
	tr      transcriber.Transcriber
	gen     actions.Generator
	out     sink.Sink
	m       *metrics.Metrics
	now     func() time.Time
	onDone  []func(Outcome)
	started bool

	mu     sync.Mutex
	closed bool
	jobs   chan *Utterance
	wg     sync.WaitGroup
}

func NewFinalizer(cfg FinalizerConfig, tr transcriber.Transcriber, out sink.Sink, m *metrics.Metrics) *Finalizer {
	if cfg.Backlog <= 0 {
		cfg.Backlog = 16
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Finalizer{
		cfg:  cfg,
		tr:   tr,
		out:  out,
		m:    m,
		now:  time.Now,
		jobs: make(chan *Utterance, cfg.Backlog),
	}
}

// WithActions enables action generation for every transcript.
func (f *Finalizer) WithActions(g actions.Generator) *Finalizer {
	f.gen = g
	return f
}

// OnDone registers a callback run on the worker after each utterance.
// Register before Start.
func (f *Finalizer) OnDone(fn func(Outcome)) {
	f.onDone = append(f.onDone, fn)
}

// Start launches the worker. Jobs already queued when ctx is cancelled are
// still processed; Close waits for them.
func (f *Finalizer) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true

	base := context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for u := range f.jobs {
			f.process(base, u)
		}
	}()
}

// Finalize hands u to the worker. An empty utterance is a no-op: it is
// logged and never reaches the transcriber or the sinks. It reports whether
// work was dispatched.
func (f *Finalizer) Finalize(u *Utterance) bool {
	if u.Empty() {
		var gen uint64
		if u != nil {
			gen = u.Gen
		}
		log.NoAudio(gen)
		if f.m != nil {
			f.m.Utterances.WithLabelValues(metrics.OutcomeEmpty).Inc()
		}
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		log.Errorf("utterance %d dropped: %v", u.Gen, ErrClosed)
		return false
	}
	f.jobs <- u
	return true
}

// Close stops accepting work and waits for queued utterances to finish.
func (f *Finalizer) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.jobs)
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *Finalizer) process(ctx context.Context, u *Utterance) {
	start := f.now()
	out := Outcome{Gen: u.Gen, AudioS: u.Seconds(f.cfg.SampleRate, f.cfg.Channels)}
	defer func() {
		out.Took = f.now().Sub(start)
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic: %v", r)
			log.Errorf("finalize panic: gen=%d: %v", u.Gen, r)
		}
		for _, fn := range f.onDone {
			fn(out)
		}
	}()

	if f.m != nil {
		f.m.UtteranceSeconds.Observe(out.AudioS)
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	res, err := f.tr.Transcribe(ctx, transcriber.Request{
		Samples:    audio.Downmix(u.Samples(), f.cfg.Channels),
		SampleRate: f.cfg.SampleRate,
		Language:   f.cfg.Language,
		BeamSize:   f.cfg.BeamSize,
	})
	if err != nil {
		out.Err = err
		log.TranscriptionFailed(u.Gen, f.tr.Name(), err)
		f.count(metrics.OutcomeFailed)
		return
	}

	out.Net = res.Metrics
	out.Text = strings.TrimSpace(res.Text)
	if out.Text == "" {
		log.Logger().Info().Uint64("gen", u.Gen).Float64("audio_s", out.AudioS).Msg("no_speech")
		f.count(metrics.OutcomeNoSpeech)
		return
	}
	f.count(metrics.OutcomeTranscribed)
	log.Logger().Info().
		Uint64("gen", u.Gen).
		Int("blocks", u.Blocks).
		Float64("audio_s", out.AudioS).
		Int("chars", len(out.Text)).
		Msg("utterance")

	var acts []actions.Action
	if f.gen != nil {
		plan, err := f.gen.Generate(ctx, out.Text)
		if err != nil {
			if f.m != nil {
				f.m.ActionFailures.Inc()
			}
			log.Logger().Error().Uint64("gen", u.Gen).Err(err).Msg("actions_failed")
		} else {
			acts = plan.Actions
		}
	}

	rec := sink.NewRecord(out.Text, f.now(), acts)
	out.Record = &rec
	if f.out == nil {
		return
	}
	if err := f.out.Publish(ctx, rec); err != nil {
		out.Err = fmt.Errorf("publishing: %w", err)
		log.Errorf("sink publish: gen=%d: %v", u.Gen, err)
	}
}

func (f *Finalizer) count(outcome string) {
	if f.m != nil {
		f.m.Utterances.WithLabelValues(outcome).Inc()
	}
}
