package encoder

import (
	"testing"

	"hark/audio"
)

func TestWavRoundTrip(t *testing.T) {
	samples := make([]int16, 3*BlockSize+17)
	for i := range samples {
		samples[i] = int16((i * 37) % 20000)
	}

	data, err := Encode(FormatWAV, 16000, samples)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !audio.IsWAV(data) {
		t.Fatal("output is not a RIFF/WAVE file")
	}

	clip, err := audio.DecodeWAVBytes(data)
	if err != nil {
		t.Fatalf("DecodeWAVBytes: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("format = %d Hz x%d, want 16000 Hz x1", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(clip.Samples), len(samples))
	}
	for i := range samples {
		if clip.Samples[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, clip.Samples[i], samples[i])
		}
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if _, err := Encode("ogg", 16000, nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestEncodeFlacDefault(t *testing.T) {
	data, err := Encode("", 16000, make([]int16, 100))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data[:4]) != "fLaC" {
		t.Error("default format should be flac")
	}
}
