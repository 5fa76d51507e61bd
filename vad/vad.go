// Package vad wraps the WebRTC voice activity detector for 16-bit PCM.
package vad

import (
	"encoding/binary"
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	DefaultMode = 3
	frameMs     = 20
	debounce    = 3 // consecutive speech frames to confirm voice

	// SpeechThreshold is the fraction of frames that must be speech for a
	// tick to count as speaking.
	SpeechThreshold = 0.10
)

type Detector struct {
	vad        *webrtcvad.VAD
	sampleRate int
	frameBytes int

	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
}

// New accepts 8000, 16000, 32000 or 48000 Hz mono input.
func New(sampleRate, mode int) (*Detector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtcvad: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtcvad mode %d: %w", mode, err)
	}
	frameBytes := sampleRate * frameMs / 1000 * 2
	if !v.ValidRateAndFrameLength(sampleRate, frameBytes/2) {
		return nil, fmt.Errorf("webrtcvad: unsupported sample rate %d", sampleRate)
	}
	return &Detector{vad: v, sampleRate: sampleRate, frameBytes: frameBytes}, nil
}

func (d *Detector) Process(samples []int16) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range samples {
		d.buf = binary.LittleEndian.AppendUint16(d.buf, uint16(s))
	}
	for len(d.buf) >= d.frameBytes {
		frame := d.buf[:d.frameBytes]

		active, err := d.vad.Process(d.sampleRate, frame)
		d.buf = d.buf[d.frameBytes:]
		if err != nil {
			continue
		}
		d.totalFrames++
		if active {
			d.speechFrames++
			d.speechRun++
			if d.speechRun >= debounce {
				d.voiceDetected = true
			}
		} else {
			d.speechRun = 0
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
}

func (d *Detector) VoiceDetected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voiceDetected
}

// HasSpeechTick reports whether the frames seen since the previous call
// were at least SpeechThreshold speech.
func (d *Detector) HasSpeechTick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.totalFrames - d.tickTotal
	s := d.speechFrames - d.tickSpeech
	d.tickTotal, d.tickSpeech = d.totalFrames, d.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= SpeechThreshold
}

func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.voiceDetected = false
	d.speechRun = 0
	d.tickTotal, d.tickSpeech = d.totalFrames, d.speechFrames
}
