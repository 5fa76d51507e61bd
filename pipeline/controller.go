package pipeline

import (
	"context"
	"sync"

	"hark/log"
	"hark/metrics"
)

type State int

const (
	Muted State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "muted"
}

// Change is delivered to observers after every toggle. Utterance is the
// audio taken on a Listening to Muted transition (possibly nil).
type Change struct {
	State     State
	Gen       uint64
	Utterance *Utterance
}

// Controller owns the mute state. Toggles are serialized: each one,
// including the synchronous take of the finished utterance, completes
// before the next starts.
type Controller struct {
	gate *Gate
	asm  *Assembler
	fin  *Finalizer
	m    *metrics.Metrics

	mu        sync.Mutex
	state     State
	gen       uint64
	observers []func(Change)
}

func NewController(gate *Gate, asm *Assembler, fin *Finalizer, m *metrics.Metrics) *Controller {
	return &Controller{gate: gate, asm: asm, fin: fin, m: m}
}

// Observe registers fn to run after each transition while the toggle lock
// is held. fn must not call back into the controller synchronously.
func (c *Controller) Observe(fn func(Change)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle flips between Muted and Listening and returns the new state.
func (c *Controller) Toggle() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toggleLocked()
}

// MuteIf mutes only while still in listening interval gen, so a late
// auto-mute cannot end a newer interval.
func (c *Controller) MuteIf(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listening || c.gen != gen {
		return false
	}
	c.toggleLocked()
	return true
}

// Shutdown finalizes a pending utterance if listening.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Listening {
		c.toggleLocked()
	}
}

func (c *Controller) toggleLocked() State {
	var ch Change
	switch c.state {
	case Muted:
		on, gen := c.gate.Toggle()
		if !on {
			panic("pipeline: gate and controller out of sync")
		}
		c.state, c.gen = Listening, gen
		ch = Change{State: Listening, Gen: gen}
		log.ListenOn(gen)
		if c.m != nil {
			c.m.Listening.Set(1)
		}

	case Listening:
		c.gate.Toggle()
		c.gate.Quiesce()
		u := c.asm.Take()
		gen := c.gen
		c.state = Muted
		ch = Change{State: Muted, Gen: gen, Utterance: u}
		log.ListenOff(gen, blocksOf(u), u.Seconds(c.fin.cfg.SampleRate, c.fin.cfg.Channels))
		if c.m != nil {
			c.m.Listening.Set(0)
		}
		c.fin.Finalize(u)
	}

	for _, fn := range c.observers {
		fn(ch)
	}
	return c.state
}

func blocksOf(u *Utterance) int {
	if u == nil {
		return 0
	}
	return u.Blocks
}

// Run toggles once per event until ctx is cancelled or events closes, then
// finalizes any utterance still being recorded.
func (c *Controller) Run(ctx context.Context, events <-chan struct{}) error {
	defer c.Shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			c.Toggle()
		}
	}
}
