package pipeline

import "testing"

func TestControllerStates(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.p.Controller

	var changes []Change
	c.Observe(func(ch Change) { changes = append(changes, ch) })

	if c.State() != Muted {
		t.Fatal("controller starts listening")
	}
	if s := c.Toggle(); s != Listening || s.String() != "listening" {
		t.Fatalf("Toggle = %v", s)
	}
	h.emit(1)
	if s := c.Toggle(); s != Muted || s.String() != "muted" {
		t.Fatalf("Toggle = %v", s)
	}
	h.waitOutcome()

	if len(changes) != 2 {
		t.Fatalf("observed %d changes", len(changes))
	}
	if changes[0].State != Listening || changes[0].Gen != 1 || changes[0].Utterance != nil {
		t.Errorf("first change = %+v", changes[0])
	}
	if changes[1].State != Muted || changes[1].Gen != 1 || changes[1].Utterance.Blocks != 1 {
		t.Errorf("second change = %+v", changes[1])
	}
}

func TestMuteIfIgnoresStaleGeneration(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.p.Controller

	if c.MuteIf(1) {
		t.Fatal("MuteIf muted a muted controller")
	}
	c.Toggle()
	c.Toggle()
	c.Toggle() // listening, gen 3

	if c.MuteIf(1) {
		t.Fatal("stale MuteIf ended a newer interval")
	}
	if c.State() != Listening {
		t.Fatal("state changed")
	}
	if !c.MuteIf(3) || c.State() != Muted {
		t.Fatal("MuteIf did not mute the current interval")
	}
}

func TestShutdownFinalizesPending(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.p.Controller

	c.Shutdown()
	if c.State() != Muted {
		t.Fatal("Shutdown while muted changed state")
	}
	c.Toggle()
	h.emit(1, 2)
	c.Shutdown()
	if c.State() != Muted {
		t.Fatal("Shutdown left controller listening")
	}
	if o := h.waitOutcome(); o.Text != "hello world" {
		t.Fatalf("outcome = %+v", o)
	}
}
