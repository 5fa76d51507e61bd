package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"hark/log"
	"hark/pipeline"
)

// display abstracts the presentation layer so the TUI and plain terminal
// output receive the same listening and transcription events.
type display interface {
	Listening(gen uint64)
	Muted(gen uint64, audioS float64)
	AudioLevel(level float64)
	SilenceWarning()
	Outcome(o pipeline.Outcome)
	ModeLine(text string)
	DeviceLine(text string)
}

// blockLevel returns the RMS level of samples in [0, 1].
func blockLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}

// lineDisplay prints one line per event, for -tui=false and test mode.
type lineDisplay struct {
	w io.Writer
}

func newLineDisplay(w io.Writer) *lineDisplay {
	return &lineDisplay{w: w}
}

func (d *lineDisplay) Listening(gen uint64) {
	fmt.Fprintf(d.w, "● listening (#%d)\n", gen/2+1)
}

func (d *lineDisplay) Muted(_ uint64, audioS float64) {
	fmt.Fprintf(d.w, "○ muted after %.1fs\n", audioS)
}

func (d *lineDisplay) AudioLevel(float64) {}

func (d *lineDisplay) SilenceWarning() {
	fmt.Fprintln(d.w, "  ⚠ no voice detected")
}

func (d *lineDisplay) Outcome(o pipeline.Outcome) {
	switch {
	case o.Err != nil && o.Record == nil:
		fmt.Fprintf(d.w, "  error: %v\n", o.Err)
	case o.Text == "":
		fmt.Fprintln(d.w, "  (no speech detected)")
	default:
		fmt.Fprintf(d.w, "> %s\n", o.Text)
		if o.Record != nil && len(o.Record.Actions) > 0 {
			fmt.Fprintf(d.w, "  %d actions\n", len(o.Record.Actions))
		}
		if o.Err != nil {
			fmt.Fprintf(d.w, "  warning: %v\n", o.Err)
		}
	}
}

func (d *lineDisplay) ModeLine(text string)   { fmt.Fprintln(d.w, text) }
func (d *lineDisplay) DeviceLine(text string) { fmt.Fprintln(d.w, text) }

// newToggle returns a non-blocking func that queues one toggle on ch. When
// ch is full the toggle waits on its own goroutine until the controller
// catches up or ctx ends, so presses are delayed rather than lost.
func newToggle(ctx context.Context, ch chan<- struct{}) func() {
	return func() {
		select {
		case ch <- struct{}{}:
			return
		default:
		}
		log.Warnf("toggle_backlog_full")
		go func() {
			select {
			case ch <- struct{}{}:
			case <-ctx.Done():
			}
		}()
	}
}
