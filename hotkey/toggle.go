package hotkey

import (
	"sync"
	"time"
)

// Toggler turns key presses into toggle events. Every press toggles. When
// hold is positive, a press held longer than hold also toggles on release,
// so holding the key works as push-to-talk.
//
// listening, when non-nil, reports the current mute state at each press.
// Pass it whenever other sources can toggle too (auto-mute, another key,
// the TUI); without it the Toggler only tracks its own presses.
type Toggler struct {
	listening func() bool
	events    chan struct{}
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
}

func NewToggler(hk Hotkey, hold time.Duration, listening func() bool) *Toggler {
	t := &Toggler{
		listening: listening,
		events:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.run(hk, hold)
	return t
}

// Events delivers one value per toggle.
func (t *Toggler) Events() <-chan struct{} { return t.events }

func (t *Toggler) Close() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

type togglerState int

const (
	stIdle togglerState = iota
	stListening
)

func (t *Toggler) emit() bool {
	select {
	case t.events <- struct{}{}:
		return true
	case <-t.stop:
		return false
	}
}

func (t *Toggler) run(hk Hotkey, hold time.Duration) {
	defer close(t.done)
	state := stIdle
	for {
		select {
		case <-t.stop:
			return
		case <-hk.Keydown():
		}
		if t.listening != nil {
			state = stIdle
			if t.listening() {
				state = stListening
			}
		}
		if !t.emit() {
			return
		}

		if state == stListening {
			// This press ended the interval; swallow its release.
			state = stIdle
			if !t.waitKeyup(hk) {
				return
			}
			continue
		}

		if hold <= 0 {
			state = stListening
			if !t.waitKeyup(hk) {
				return
			}
			continue
		}

		timer := time.NewTimer(hold)
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-hk.Keyup():
			// Tap: stay on until the next press.
			timer.Stop()
			state = stListening
		case <-timer.C:
			// Hold: stop on release.
			if !t.waitKeyup(hk) || !t.emit() {
				return
			}
			state = stIdle
		}
	}
}

func (t *Toggler) waitKeyup(hk Hotkey) bool {
	select {
	case <-hk.Keyup():
		return true
	case <-t.stop:
		return false
	}
}
