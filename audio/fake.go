package audio

import (
	"sync"
	"time"
)

const fakeFrameSize = 1024

// FakeContext replays a recording through FakeCapture devices.
type FakeContext struct {
	clip     *Clip
	realtime bool
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	clip, err := LoadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	return &FakeContext{clip: clip, realtime: realtime}, nil
}

// NewFakeContextSamples replays mono samples recorded at rate.
func NewFakeContextSamples(samples []int16, rate int, realtime bool) *FakeContext {
	return &FakeContext{
		clip:     &Clip{Samples: samples, SampleRate: rate, Channels: 1},
		realtime: realtime,
	}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	rate := int(config.SampleRate)
	if rate == 0 {
		rate = DefaultSampleRate
	}
	channels := int(max(config.Channels, 1))

	var pcm []int16
	if f.clip != nil && len(f.clip.Samples) > 0 {
		mono, err := f.clip.Mono(rate)
		if err != nil {
			return nil, err
		}
		pcm = make([]int16, 0, len(mono)*channels)
		for _, s := range mono {
			for range channels {
				pcm = append(pcm, s)
			}
		}
	}
	return &FakeCapture{
		pcm:       pcm,
		rate:      rate,
		channels:  channels,
		realtime:  f.realtime,
		audioDone: make(chan struct{}),
	}, nil
}

// FakeCapture feeds its recording in fakeFrameSize chunks once started and
// pads with silence afterwards, like a live microphone in a quiet room.
// Emit pushes samples synchronously and works without Start.
type FakeCapture struct {
	pcm       []int16
	rate      int
	channels  int
	realtime  bool
	manual    bool
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// NewFakeCapture returns a device that only delivers what Emit is given.
func NewFakeCapture(rate, channels int) *FakeCapture {
	return &FakeCapture{rate: rate, channels: channels, manual: true, audioDone: make(chan struct{})}
}

func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Emit delivers samples to the callback as if the driver produced them.
func (f *FakeCapture) Emit(samples []int16) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

func (f *FakeCapture) feedChunk(pos, chunk int) int {
	end := min(pos+chunk, len(f.pcm))
	buf := make([]int16, end-pos)
	copy(buf, f.pcm[pos:end])
	f.Emit(buf)
	return end
}

func (f *FakeCapture) Start() error {
	if f.manual {
		return nil
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	// audioDone is NOT recreated here -- callers may already be waiting on it.
	// It's reset in Stop() for replay.

	chunk := fakeFrameSize * f.channels
	silence := make([]int16, chunk)
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.rate)

	if !f.realtime {
		for pos := 0; pos < len(f.pcm); {
			pos = f.feedChunk(pos, chunk)
		}
		close(f.audioDone)
		interval = time.Millisecond
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		finished := !f.realtime
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
			if pos < len(f.pcm) && f.realtime {
				pos = f.feedChunk(pos, chunk)
				continue
			}
			if !finished {
				finished = true
				close(f.audioDone)
			}
			f.Emit(silence)
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
	f.audioDone = make(chan struct{}) // reset for replay
}

func (f *FakeCapture) Close() {}
