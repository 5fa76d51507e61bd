package pipeline

import (
	"context"
	"sync"
	"time"

	"hark/metrics"
)

const DefaultPollInterval = 10 * time.Millisecond

type AssemblerConfig struct {
	// PollInterval bounds how long a block can wait when a Ready signal
	// was coalesced away. Keep it well under one block duration.
	PollInterval time.Duration
	// CapacityHint preallocates each utterance, in samples.
	CapacityHint int
	// OnBlock sees each block after it is appended, on the assembler
	// goroutine and outside the buffer lock.
	OnBlock func(Block)
}

// Assembler moves queued blocks into the current utterance while the gate is
// open. Take hands the utterance over on mute; both paths hold mu, so a block
// is either in the returned utterance or still queued, never both.
type Assembler struct {
	gate  *Gate
	queue *Queue
	cfg   AssemblerConfig
	m     *metrics.Metrics

	mu      sync.Mutex
	cur     *Utterance
	scratch []Block
}

func NewAssembler(gate *Gate, queue *Queue, cfg AssemblerConfig, m *metrics.Metrics) *Assembler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Assembler{gate: gate, queue: queue, cfg: cfg, m: m}
}

func (a *Assembler) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.queue.Ready():
		case <-ticker.C:
		}
		a.step()
	}
}

// step drains the queue once if listening.
func (a *Assembler) step() {
	if !a.gate.Listening() {
		return
	}

	a.mu.Lock()
	tapped := a.scratch[:0]
	a.queue.DrainTo(func(b Block) {
		a.appendLocked(b)
		if a.cfg.OnBlock != nil {
			tapped = append(tapped, b)
		}
	})
	a.scratch = tapped
	a.mu.Unlock()

	if a.m != nil {
		a.m.QueueDepth.Set(float64(a.queue.Len()))
	}
	for i, b := range tapped {
		a.cfg.OnBlock(b)
		tapped[i] = Block{}
	}
}

func (a *Assembler) appendLocked(b Block) {
	if a.cur == nil {
		a.cur = newUtterance(b.Gen, a.cfg.CapacityHint)
	}
	a.cur.Append(b)
}

// Take drains whatever is still queued into the current utterance, returns
// it and starts a fresh buffer. It returns nil when nothing was captured.
func (a *Assembler) Take() *Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.queue.DrainTo(a.appendLocked)
	u := a.cur
	a.cur = nil
	if a.m != nil {
		a.m.QueueDepth.Set(0)
	}
	return u
}

// Buffered reports the samples accumulated so far.
func (a *Assembler) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur.Len()
}
