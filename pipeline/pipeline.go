// Package pipeline is the capture and buffering core: a gated device
// callback feeds a queue, an assembler builds the utterance while
// listening, and each mute hands the finished utterance to a transcription
// worker.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"hark/actions"
	"hark/audio"
	"hark/log"
	"hark/metrics"
	"hark/sink"
	"hark/transcriber"
	"hark/vad"
)

type Config struct {
	SampleRate    int
	Channels      int
	BlockDuration time.Duration
	PollInterval  time.Duration

	Language          string
	BeamSize          int
	TranscribeTimeout time.Duration

	SilenceWarn time.Duration
	// AutoMute of 0 disables silence auto-mute.
	AutoMute time.Duration
	// DisableSilence skips voice detection entirely.
	DisableSilence bool
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = audio.DefaultChannels
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = audio.DefaultBlockDuration
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// BlockFrames is the number of frames per block.
func (c Config) BlockFrames() int {
	c = c.withDefaults()
	return int(audio.BlockFrames(uint32(c.SampleRate), c.BlockDuration))
}

// Pipeline wires the components around one capture device.
type Pipeline struct {
	cfg Config

	Gate       *Gate
	Queue      *Queue
	Assembler  *Assembler
	Source     *Source
	Finalizer  *Finalizer
	Controller *Controller
	Silence    *SilenceWatcher
}

type Deps struct {
	Device      audio.CaptureDevice
	Transcriber transcriber.Transcriber
	Sink        sink.Sink
	Actions     actions.Generator // optional
	Metrics     *metrics.Metrics  // optional
	// OnBlock sees every assembled block, e.g. for a level meter. It runs
	// on the assembler goroutine and must not block.
	OnBlock func(Block)
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if cfg.PollInterval >= cfg.BlockDuration {
		return nil, fmt.Errorf("poll interval %v must be shorter than block duration %v", cfg.PollInterval, cfg.BlockDuration)
	}
	if deps.Device == nil || deps.Transcriber == nil {
		return nil, fmt.Errorf("pipeline needs a capture device and a transcriber")
	}

	frames := cfg.BlockFrames()
	if frames <= 0 {
		return nil, fmt.Errorf("block duration %v too short at %d Hz", cfg.BlockDuration, cfg.SampleRate)
	}
	blockSamples := frames * cfg.Channels

	p := &Pipeline{cfg: cfg, Gate: &Gate{}, Queue: NewQueue()}

	p.Finalizer = NewFinalizer(FinalizerConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Language:   cfg.Language,
		BeamSize:   cfg.BeamSize,
		Timeout:    cfg.TranscribeTimeout,
	}, deps.Transcriber, deps.Sink, deps.Metrics)
	if deps.Actions != nil {
		p.Finalizer.WithActions(deps.Actions)
	}

	asmCfg := AssemblerConfig{
		PollInterval: cfg.PollInterval,
		CapacityHint: cfg.SampleRate * cfg.Channels * 10,
	}

	var det *vad.Detector
	if !cfg.DisableSilence {
		var err error
		if det, err = vad.New(cfg.SampleRate, vad.DefaultMode); err != nil {
			log.Warnf("silence detection disabled: %v", err)
			det = nil
		}
	}
	if det != nil || deps.OnBlock != nil {
		tap := deps.OnBlock
		asmCfg.OnBlock = func(b Block) {
			if p.Silence != nil {
				p.Silence.Block(b)
			}
			if tap != nil {
				tap(b)
			}
		}
	}

	p.Assembler = NewAssembler(p.Gate, p.Queue, asmCfg, deps.Metrics)
	p.Source = NewSource(deps.Device, p.Gate, p.Queue, blockSamples, deps.Metrics)
	p.Controller = NewController(p.Gate, p.Assembler, p.Finalizer, deps.Metrics)

	if det != nil {
		p.Silence = NewSilenceWatcher(SilenceConfig{
			SampleRate:    cfg.SampleRate,
			Channels:      cfg.Channels,
			Block:         cfg.BlockDuration,
			WarnAfter:     cfg.SilenceWarn,
			AutoMuteAfter: cfg.AutoMute,
		}, p.Controller, det)
		p.Controller.Observe(p.Silence.Observe)
	}
	return p, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

// Run starts capture and processes toggle events until ctx is cancelled or
// events is closed. A device that fails to start is returned immediately.
// On return the last utterance has been finalized and published.
func (p *Pipeline) Run(ctx context.Context, events <-chan struct{}) error {
	p.Finalizer.Start(ctx)
	defer p.Finalizer.Close()

	if err := p.Source.Start(); err != nil {
		return err
	}
	defer p.Source.Stop()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Assembler.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return p.Controller.Run(gctx, events)
	})
	return g.Wait()
}
