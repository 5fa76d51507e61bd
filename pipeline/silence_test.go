package pipeline

import (
	"testing"
	"time"
)

const testTick = 100 * time.Millisecond

func warnOnlyMonitor() *silenceMonitor {
	return newSilenceMonitor(testTick, DefaultSilenceWarn, 0)
}

func autoMuteMonitor() *silenceMonitor {
	return newSilenceMonitor(testTick, DefaultSilenceWarn, DefaultAutoMute)
}

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for range n {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := warnOnlyMonitor()
	for i := range 79 {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := warnOnlyMonitor()
	feedN(m, false, 80)

	for range 80 {
		if m.Tick(true) == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := warnOnlyMonitor()
	for i := range 200 {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestSilenceRepeat(t *testing.T) {
	m := warnOnlyMonitor()
	feedN(m, false, 80)
	for range 100 {
		if m.Tick(false) == SilenceRepeat {
			return
		}
	}
	t.Fatal("expected SilenceRepeat")
}

func TestAutoMutePriorityOverRepeat(t *testing.T) {
	m := autoMuteMonitor()
	for i := range 400 {
		ev := m.Tick(false)
		if ev == SilenceAutoMute {
			if i != 299 {
				t.Fatalf("auto-mute at tick %d, want 299", i)
			}
			return
		}
		if i >= 300 && ev == SilenceRepeat {
			t.Fatalf("SilenceRepeat fired at tick %d instead of SilenceAutoMute", i)
		}
	}
	t.Fatal("expected SilenceAutoMute within 400 ticks")
}

func TestNoAutoMuteWhenDisabled(t *testing.T) {
	m := warnOnlyMonitor()
	for i := range 400 {
		if m.Tick(false) == SilenceAutoMute {
			t.Fatalf("unexpected auto-mute at tick %d", i)
		}
	}
}

func TestAutoMutePreventedBySpeech(t *testing.T) {
	m := autoMuteMonitor()
	for i := range 500 {
		if m.Tick(i%10 < 7) == SilenceAutoMute {
			t.Fatalf("unexpected auto-mute with speech at tick %d", i)
		}
	}
}

func TestMonitorTickCoarserThanWarn(t *testing.T) {
	m := newSilenceMonitor(time.Second, 500*time.Millisecond, 0)
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn on first tick, got %d", ev)
	}
}
