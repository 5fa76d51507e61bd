// Package doctor runs step-by-step diagnostics of the capture, hotkey and
// transcription setup.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"hark/audio"
	"hark/hotkey"
	"hark/transcriber"
	"hark/vad"
)

// Check is one diagnostic step. Run writes progress to w and returns nil on
// success.
type Check struct {
	Name string
	Run  func(ctx context.Context, w io.Writer) error
}

// ErrSkipped marks a check that could not apply on this machine.
var ErrSkipped = errors.New("skipped")

type Env struct {
	Audio       audio.Context
	Device      *audio.DeviceInfo
	Transcriber transcriber.Transcriber
	SampleRate  int
	Language    string
	// Record is how long the microphone check listens.
	Record time.Duration
	// Hotkey, when set, is pressed by the user during the hotkey check.
	Hotkey hotkey.Hotkey
	// Diagnose reports on hotkey prerequisites before the press.
	Diagnose func() (string, error)
	LogDir   string
	Timeout  time.Duration
}

// Run executes checks in order, stopping at the first failure, and returns
// a process exit code (0 = all passed).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "hark doctor - system diagnostics")
	fmt.Fprintln(w, "================================")

	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		err := c.Run(ctx, w)
		switch {
		case err == nil:
			fmt.Fprintln(w, "  PASS")
		case errors.Is(err, ErrSkipped):
			fmt.Fprintf(w, "  SKIP: %v\n", err)
		default:
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			fmt.Fprintln(w, "\nSome checks failed. See details above.")
			return 1
		}
	}
	fmt.Fprintln(w, "\nAll checks passed!")
	return 0
}

// Checks builds the standard sequence for env. The transcription check
// reuses the samples the microphone check recorded.
func Checks(env Env) []Check {
	if env.SampleRate <= 0 {
		env.SampleRate = audio.DefaultSampleRate
	}
	if env.Record <= 0 {
		env.Record = 3 * time.Second
	}
	if env.Timeout <= 0 {
		env.Timeout = 30 * time.Second
	}

	var recorded []int16
	checks := []Check{{Name: "Log directory", Run: func(_ context.Context, w io.Writer) error {
		return checkLogDir(w, env.LogDir)
	}}}
	if env.Hotkey != nil {
		checks = append(checks, Check{Name: "Hotkey detection", Run: func(ctx context.Context, w io.Writer) error {
			return checkHotkey(ctx, w, env.Hotkey, env.Diagnose)
		}})
	}
	checks = append(checks,
		Check{Name: "Microphone", Run: func(ctx context.Context, w io.Writer) error {
			samples, err := checkMicrophone(ctx, w, env)
			recorded = samples
			return err
		}},
		Check{Name: "Transcription", Run: func(ctx context.Context, w io.Writer) error {
			return checkTranscription(ctx, w, env, recorded)
		}},
		Check{Name: "Clipboard", Run: func(_ context.Context, w io.Writer) error {
			return checkClipboard(w)
		}},
	)
	return checks
}

func checkLogDir(w io.Writer, dir string) error {
	if dir == "" {
		return fmt.Errorf("no log directory: %w", ErrSkipped)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("log directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	fmt.Fprintf(w, "  %s is writable\n", dir)
	return nil
}

func checkHotkey(ctx context.Context, w io.Writer, hk hotkey.Hotkey, diagnose func() (string, error)) error {
	if diagnose != nil {
		msg, err := diagnose()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", msg)
	}

	if err := hk.Register(); err != nil {
		return fmt.Errorf("could not register hotkey: %w", err)
	}
	defer hk.Unregister()
	fmt.Fprintf(w, "  Press %s...\n", hotkey.Combo)

	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	select {
	case <-hk.Keydown():
	case <-timeout.C:
		return errors.New("timeout waiting for hotkey")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-hk.Keyup():
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}
	resetTerminal()
	fmt.Fprintln(w, "  hotkey detected")
	return nil
}

func checkMicrophone(ctx context.Context, w io.Writer, env Env) ([]int16, error) {
	if env.Audio == nil {
		return nil, fmt.Errorf("no audio context: %w", ErrSkipped)
	}
	devices, err := env.Audio.Devices()
	if err != nil {
		return nil, fmt.Errorf("cannot list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, audio.ErrNoDevice
	}
	name := "system default"
	if env.Device != nil {
		name = env.Device.Name
	}
	fmt.Fprintf(w, "  %d capture devices, using %s\n", len(devices), name)
	if env.Device != nil && audio.IsBluetooth(env.Device.Name) {
		fmt.Fprintln(w, "  warning: Bluetooth headsets capture at reduced quality")
	}

	samples, err := record(ctx, w, env)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("no audio captured")
	}

	fmt.Fprintf(w, "  %.1fs captured, peak %.0f dBFS\n",
		float64(len(samples))/float64(env.SampleRate), peakDBFS(samples))

	det, err := vad.New(env.SampleRate, vad.DefaultMode)
	if err != nil {
		fmt.Fprintf(w, "  voice detection unavailable: %v\n", err)
		return samples, nil
	}
	det.Process(samples)
	if det.VoiceDetected() {
		fmt.Fprintln(w, "  voice detected")
	} else {
		fmt.Fprintln(w, "  warning: no voice detected, check the input level")
	}
	return samples, nil
}

func record(ctx context.Context, w io.Writer, env Env) ([]int16, error) {
	capture, err := env.Audio.NewCapture(env.Device, audio.CaptureConfig{
		SampleRate: uint32(env.SampleRate),
		Channels:   1,
	})
	if err != nil {
		return nil, err
	}
	defer capture.Close()

	var mu sync.Mutex
	var pcm []int16
	capture.SetCallback(func(samples []int16) {
		mu.Lock()
		pcm = append(pcm, samples...)
		mu.Unlock()
	})
	if err := capture.Start(); err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "  Speak for %s", env.Record)
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.NewTimer(env.Record)
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(w, ".")
		case <-deadline.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	ticker.Stop()
	deadline.Stop()
	capture.Stop()
	capture.ClearCallback()
	fmt.Fprintln(w, " done")

	mu.Lock()
	defer mu.Unlock()
	return pcm, ctx.Err()
}

func peakDBFS(samples []int16) float64 {
	var peak int
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	if peak == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(peak)/32768)
}

func checkTranscription(ctx context.Context, w io.Writer, env Env, samples []int16) error {
	if env.Transcriber == nil {
		return fmt.Errorf("no transcription provider configured: %w", ErrSkipped)
	}
	if len(samples) == 0 {
		return fmt.Errorf("nothing recorded: %w", ErrSkipped)
	}
	fmt.Fprintf(w, "  Transcribing with %s...\n", env.Transcriber.Name())

	ctx, cancel := context.WithTimeout(ctx, env.Timeout)
	defer cancel()
	start := time.Now()
	res, err := env.Transcriber.Transcribe(ctx, transcriber.Request{
		Samples:    samples,
		SampleRate: env.SampleRate,
		Language:   env.Language,
		BeamSize:   1,
	})
	if err != nil {
		return err
	}
	text := res.Text
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(w, "  %q in %d ms\n", text, time.Since(start).Milliseconds())
	return nil
}

func checkClipboard(w io.Writer) error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility found: %w", ErrSkipped)
	}
	prev, _ := clipboard.ReadAll()
	defer clipboard.WriteAll(prev)

	const marker = "hark-doctor-test"
	if err := clipboard.WriteAll(marker); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	got, err := clipboard.ReadAll()
	if err != nil {
		return fmt.Errorf("clipboard read failed: %w", err)
	}
	if got != marker {
		return fmt.Errorf("clipboard returned %q, want %q", got, marker)
	}
	fmt.Fprintln(w, "  clipboard round trip ok")
	return nil
}
