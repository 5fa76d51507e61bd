package pipeline

import (
	"fmt"
	"time"

	"hark/audio"
	"hark/log"
	"hark/metrics"
)

// Source turns the device's data callbacks into gated, sequenced blocks.
// Everything on the callback path is non-blocking: framing, one gate check
// and one queue append per completed block.
type Source struct {
	dev    audio.CaptureDevice
	gate   *Gate
	queue  *Queue
	m      *metrics.Metrics
	framer *audio.Framer

	// seq is only touched from the driver thread.
	seq uint64
	now func() time.Time
}

// NewSource frames blockSamples interleaved samples per block.
func NewSource(dev audio.CaptureDevice, gate *Gate, queue *Queue, blockSamples int, m *metrics.Metrics) *Source {
	s := &Source{dev: dev, gate: gate, queue: queue, m: m, now: time.Now}
	s.framer = audio.NewFramer(blockSamples, s.emit)
	return s
}

// Start installs the callback and starts the device. A failure here is a
// configuration problem (missing device, permission denied) and is not
// retried.
func (s *Source) Start() error {
	s.dev.SetCallback(s.onData)
	if err := s.dev.Start(); err != nil {
		s.dev.ClearCallback()
		return fmt.Errorf("starting capture on %s: %w", s.dev.DeviceName(), err)
	}
	return nil
}

func (s *Source) Stop() {
	s.dev.ClearCallback()
	s.dev.Stop()
}

func (s *Source) onData(samples []int16) {
	defer func() {
		if r := recover(); r != nil {
			s.framer.Reset()
			if s.m != nil {
				s.m.CallbackPanics.Inc()
			}
			log.CallbackPanic(r)
		}
	}()
	s.framer.Write(samples)
}

func (s *Source) emit(samples []int16) {
	seq := s.seq
	s.seq++

	gen, ok := s.gate.Admit()
	if !ok {
		if s.m != nil {
			s.m.BlocksDiscarded.Inc()
		}
		return
	}
	defer s.gate.Release()

	s.queue.Enqueue(Block{
		Seq:        seq,
		Gen:        gen,
		CapturedAt: s.now(),
		Samples:    samples,
	})
	if s.m != nil {
		s.m.BlocksAdmitted.Inc()
	}
}
