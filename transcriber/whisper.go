//go:build whisper

package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"hark/audio"
	"hark/encoder"
)

// Whisper runs a local ggml model. Contexts share the model's inference
// state, so calls are serialized.
type Whisper struct {
	model whisper.Model
	mu    sync.Mutex
}

func NewWhisper(modelPath string) (*Whisper, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Whisper{model: model}, nil
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Close() error {
	return w.model.Close()
}

func (w *Whisper) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if len(req.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	samples := req.Samples
	if req.SampleRate != 0 && req.SampleRate != encoder.SampleRate {
		var err error
		samples, err = audio.Resample(samples, req.SampleRate, encoder.SampleRate)
		if err != nil {
			return nil, err
		}
	}
	pcm := audio.Float32(samples)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("whisper: language %q: %w", lang, err)
	}
	if req.BeamSize > 0 {
		wctx.SetBeamSize(req.BeamSize)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process: %w", err)
	}

	var segments []Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: next segment: %w", err)
		}
		segments = append(segments, Segment{
			Text:  seg.Text,
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
		})
	}

	return &Result{
		Text:     strings.TrimSpace(JoinSegments(segments)),
		Segments: segments,
		Duration: float64(len(samples)) / encoder.SampleRate,
	}, nil
}
