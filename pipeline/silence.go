package pipeline

import (
	"sync"
	"time"

	"hark/audio"
	"hark/log"
	"hark/vad"
)

const (
	DefaultSilenceWarn = 8 * time.Second
	DefaultAutoMute    = 30 * time.Second

	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
	SilenceRepeat                 // repeat reminder while still silent
	SilenceAutoMute               // long silence, close the interval
)

// silenceMonitor keeps a sliding window of per-tick speech flags.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	autoMute bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastBeep    int
}

func newSilenceMonitor(tick, warnAfter, autoMuteAfter time.Duration) *silenceMonitor {
	warnAt := max(int(warnAfter/tick), 1)
	windowSz := warnAt
	if autoMuteAfter > 0 {
		windowSz = max(int(autoMuteAfter/tick), warnAt)
	}
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		autoMute: autoMuteAfter > 0,
		window:   make([]bool, windowSz),
	}
}

func (m *silenceMonitor) ratio(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := range n {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)

	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastBeep = m.ticks
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}

	// Auto-mute is checked before the repeat reminder.
	if m.autoMute && m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return SilenceAutoMute
	}

	if m.warned && m.ticks-m.lastBeep >= m.warnAt {
		m.lastBeep = m.ticks
		return SilenceRepeat
	}

	return SilenceNone
}

type SilenceConfig struct {
	SampleRate int
	Channels   int
	Block      time.Duration
	WarnAfter  time.Duration
	// AutoMuteAfter of 0 disables auto-mute.
	AutoMuteAfter time.Duration
}

// SilenceWatcher runs voice detection over assembled blocks of the current
// interval and mutes the controller after a long stretch without speech.
type SilenceWatcher struct {
	cfg  SilenceConfig
	ctrl *Controller
	det  *vad.Detector
	// OnEvent, if set, sees every non-None event.
	OnEvent func(SilenceEvent)

	mu  sync.Mutex
	mon *silenceMonitor
	gen uint64
}

func NewSilenceWatcher(cfg SilenceConfig, ctrl *Controller, det *vad.Detector) *SilenceWatcher {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = DefaultSilenceWarn
	}
	return &SilenceWatcher{cfg: cfg, ctrl: ctrl, det: det}
}

// Observe is registered with Controller.Observe.
func (w *SilenceWatcher) Observe(ch Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch.State == Listening {
		w.gen = ch.Gen
		w.mon = newSilenceMonitor(w.cfg.Block, w.cfg.WarnAfter, w.cfg.AutoMuteAfter)
		w.det.Reset()
		return
	}
	w.gen = 0
	w.mon = nil
}

// Block is registered as the assembler's OnBlock hook.
func (w *SilenceWatcher) Block(b Block) {
	w.mu.Lock()
	if w.mon == nil || b.Gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.det.Process(audio.Downmix(b.Samples, w.cfg.Channels))
	ev := w.mon.Tick(w.det.HasSpeechTick())
	gen := w.gen
	w.mu.Unlock()

	switch ev {
	case SilenceNone:
		return
	case SilenceWarn:
		log.Logger().Warn().Uint64("gen", gen).Msg("silence_warn")
	case SilenceAutoMute:
		log.Logger().Info().Uint64("gen", gen).Dur("after", w.cfg.AutoMuteAfter).Msg("silence_auto_mute")
		go w.ctrl.MuteIf(gen)
	}
	if w.OnEvent != nil {
		w.OnEvent(ev)
	}
}
