package main

import (
	"os"
	"path/filepath"
	"testing"

	"hark/config"
	"hark/encoder"
	"hark/transcriber"
)

func writeTone(t *testing.T, rate int) string {
	t.Helper()
	samples := make([]int16, rate/2)
	for i := range samples {
		samples[i] = int16(6000 * ((i / 18) % 2))
	}
	data, err := encoder.Encode(encoder.FormatWAV, rate, samples)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBenchmarkWithoutTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Timeout = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero timeout rejected: %v", err)
	}

	fake := transcriber.NewFake("hi", nil)
	wav := writeTone(t, cfg.Audio.SampleRate)
	if code := runBenchmark(transcriber.Limit(fake, 1), cfg, wav, 1); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if n := len(fake.Calls()); n != 1 {
		t.Errorf("transcriber calls = %d, want 1", n)
	}
}

func TestBenchmarkFailsOnTranscriptionError(t *testing.T) {
	cfg := config.Default()
	fake := transcriber.NewFake("", os.ErrDeadlineExceeded)
	wav := writeTone(t, cfg.Audio.SampleRate)
	if code := runBenchmark(fake, cfg, wav, 1); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
