package pipeline

import "time"

// Block is one fixed-length slice of captured audio. Blocks are immutable
// once enqueued.
type Block struct {
	Seq        uint64
	Gen        uint64
	CapturedAt time.Time
	Samples    []int16
}
