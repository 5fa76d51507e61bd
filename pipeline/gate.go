package pipeline

import (
	"runtime"
	"sync/atomic"
)

// Gate is the listen flag shared by the capture callback and the controller.
// The generation counter is odd while listening, so every ON interval has a
// distinct generation number and a toggle is a single atomic add.
//
// Admit/Release bracket the capture side of an enqueue. Quiesce, called after
// the gate closes, waits until every block admitted under the previous
// generation has reached the queue.
type Gate struct {
	gen      atomic.Uint64
	inflight atomic.Int64
}

// Toggle flips the gate and returns the new state and generation.
func (g *Gate) Toggle() (on bool, gen uint64) {
	n := g.gen.Add(1)
	return n&1 == 1, n
}

func (g *Gate) Listening() bool {
	return g.gen.Load()&1 == 1
}

// Admit reports whether a block captured now belongs to an utterance. When
// ok is true the caller must call Release after enqueueing.
func (g *Gate) Admit() (gen uint64, ok bool) {
	g.inflight.Add(1)
	n := g.gen.Load()
	if n&1 == 0 {
		g.inflight.Add(-1)
		return n, false
	}
	return n, true
}

func (g *Gate) Release() {
	g.inflight.Add(-1)
}

// Quiesce spins until no admitted block is between Admit and Release. The
// window is one mutex-guarded append, so the wait is bounded by scheduling.
func (g *Gate) Quiesce() {
	for g.inflight.Load() != 0 {
		runtime.Gosched()
	}
}
