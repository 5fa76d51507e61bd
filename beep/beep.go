// Package beep plays short feedback tones when listening starts and stops.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable silences every later Play call. Test mode uses it.
func Disable() { disabled.Store(true) }

type Sound int

const (
	Start Sound = iota
	End
	Error
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	soundOnce sync.Once
	sounds    map[Sound][]int16
)

// tick is a decaying sine, interleaved for the given channel count.
func tick(freq, duration, volume, decay float64, channels int) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n*channels)
	for i := range n {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		for c := range channels {
			samples[i*channels+c] = s
		}
	}
	return samples
}

func doubleBeep(freq, beepDur, gapDur, volume, decay float64, channels int) []int16 {
	b := tick(freq, beepDur, volume, decay, channels)
	gap := make([]int16, int(sampleRate*gapDur)*channels)
	out := make([]int16, 0, len(b)*2+len(gap))
	out = append(out, b...)
	out = append(out, gap...)
	return append(out, b...)
}

func initSounds() {
	sounds = map[Sound][]int16{
		Start: tick(startFreq, startDuration, startVolume, startDecay, playChannels),
		End:   tick(endFreq, endDuration, endVolume, endDecay, playChannels),
		Error: doubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay, playChannels),
	}
	initPlayer()
}

// Init prepares the tones and the output device ahead of the first Play.
func Init() {
	soundOnce.Do(initSounds)
}

// Play starts s without waiting for it to finish.
func Play(s Sound) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(initSounds)
	play(sounds[s])
}

func PlayStart() { Play(Start) }
func PlayEnd()   { Play(End) }
func PlayError() { Play(Error) }
