// Package sink delivers finalized transcripts to their consumers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hark/actions"
	"hark/metrics"
)

// Record is the wire shape consumers read: one per finalized utterance.
type Record struct {
	ID      float64          `json:"id"`
	Message string           `json:"message"`
	Actions []actions.Action `json:"actions,omitempty"`
}

// NewRecord stamps text with at as fractional unix seconds.
func NewRecord(text string, at time.Time, acts []actions.Action) Record {
	return Record{
		ID:      float64(at.Unix()) + float64(at.Nanosecond())/1e9,
		Message: text,
		Actions: acts,
	}
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, r Record) error
}

// Multi publishes to every sink and joins their errors; one failing sink
// does not stop the rest.
type Multi struct {
	sinks []Sink
	m     *metrics.Metrics
}

func NewMulti(m *metrics.Metrics, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, m: m}
}

func (mu *Multi) Name() string { return "multi" }

func (mu *Multi) Add(s Sink) { mu.sinks = append(mu.sinks, s) }

func (mu *Multi) Publish(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range mu.sinks {
		if err := s.Publish(ctx, r); err != nil {
			if mu.m != nil {
				mu.m.SinkErrors.WithLabelValues(s.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Sink.
type Func struct {
	ID string
	Fn func(ctx context.Context, r Record) error
}

func (f Func) Name() string                                { return f.ID }
func (f Func) Publish(ctx context.Context, r Record) error { return f.Fn(ctx, r) }
