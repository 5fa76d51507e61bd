package pipeline

import "time"

// Utterance is the audio of one listening interval. It is owned by the
// assembler until Take hands it to the finalizer.
type Utterance struct {
	Gen      uint64
	FirstSeq uint64
	LastSeq  uint64
	Blocks   int
	Started  time.Time
	samples  []int16
}

func newUtterance(gen uint64, capHint int) *Utterance {
	return &Utterance{Gen: gen, samples: make([]int16, 0, capHint)}
}

func (u *Utterance) Append(b Block) {
	if u.Blocks == 0 {
		u.FirstSeq = b.Seq
		u.Started = b.CapturedAt
	}
	u.LastSeq = b.Seq
	u.Blocks++
	u.samples = append(u.samples, b.Samples...)
}

// Samples returns the interleaved audio in capture order.
func (u *Utterance) Samples() []int16 {
	if u == nil {
		return nil
	}
	return u.samples
}

func (u *Utterance) Len() int {
	if u == nil {
		return 0
	}
	return len(u.samples)
}

func (u *Utterance) Empty() bool {
	return u.Len() == 0
}

// Seconds is the audio length at the given format.
func (u *Utterance) Seconds(sampleRate, channels int) float64 {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return float64(u.Len()/channels) / float64(sampleRate)
}
