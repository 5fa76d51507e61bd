package audio

// Framer cuts an arbitrary stream of driver buffers into blocks of exactly
// size samples. Each emitted block is a fresh slice owned by the receiver.
// A Framer is not safe for concurrent use; it lives on the driver thread.
type Framer struct {
	size int
	cur  []int16
	emit func(block []int16)
}

func NewFramer(size int, emit func(block []int16)) *Framer {
	if size <= 0 {
		panic("audio: framer size must be positive")
	}
	return &Framer{size: size, emit: emit}
}

func (f *Framer) Write(samples []int16) {
	for len(samples) > 0 {
		if f.cur == nil {
			f.cur = make([]int16, 0, f.size)
		}
		n := min(f.size-len(f.cur), len(samples))
		f.cur = append(f.cur, samples[:n]...)
		samples = samples[n:]
		if len(f.cur) == f.size {
			block := f.cur
			f.cur = nil
			f.emit(block)
		}
	}
}

// Pending reports how many samples are waiting for the next full block.
func (f *Framer) Pending() int { return len(f.cur) }

// Reset discards a partially filled block.
func (f *Framer) Reset() { f.cur = nil }
