package main

import (
	"fmt"
	"sort"
	"sync"

	"hark/pipeline"
)

// latencyRecord is one finalized utterance as seen by the stats table.
type latencyRecord struct {
	AudioS  float64
	TotalMs float64
	TTFBMs  float64
	TLSMs   float64
}

type percentileStats struct {
	TotalMs [5]float64 // min, p50, p90, p95, max
	TTFBMs  [5]float64
	TLSMs   [5]float64
	AudioS  [5]float64
}

type sessionStats struct {
	mu       sync.Mutex
	records  []latencyRecord
	failures int
	noSpeech int
	pct      percentileStats
}

func (s *sessionStats) add(o pipeline.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case o.Err != nil && o.Record == nil:
		s.failures++
		return
	case o.Text == "":
		s.noSpeech++
		return
	}
	r := latencyRecord{
		AudioS:  o.AudioS,
		TotalMs: float64(o.Took.Microseconds()) / 1000,
	}
	if o.Net != nil {
		r.TTFBMs = float64(o.Net.TTFB.Microseconds()) / 1000
		r.TLSMs = float64(o.Net.TLS.Microseconds()) / 1000
	}
	s.records = append(s.records, r)
	s.updateLocked()
}

func (s *sessionStats) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *sessionStats) updateLocked() {
	n := len(s.records)
	if n == 0 {
		return
	}

	extract := func(fn func(latencyRecord) float64) []float64 {
		vals := make([]float64, n)
		for i, r := range s.records {
			vals[i] = fn(r)
		}
		sort.Float64s(vals)
		return vals
	}

	percentile := func(sorted []float64, p float64) float64 {
		idx := int(float64(len(sorted)-1) * p)
		return sorted[idx]
	}

	calcStats := func(sorted []float64) [5]float64 {
		return [5]float64{
			sorted[0],
			percentile(sorted, 0.50),
			percentile(sorted, 0.90),
			percentile(sorted, 0.95),
			sorted[len(sorted)-1],
		}
	}

	s.pct.TotalMs = calcStats(extract(func(r latencyRecord) float64 { return r.TotalMs }))
	s.pct.TTFBMs = calcStats(extract(func(r latencyRecord) float64 { return r.TTFBMs }))
	s.pct.TLSMs = calcStats(extract(func(r latencyRecord) float64 { return r.TLSMs }))
	s.pct.AudioS = calcStats(extract(func(r latencyRecord) float64 { return r.AudioS }))
}

// table renders the percentile grid, or "" before the first transcript.
func (s *sessionStats) table() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return ""
	}

	ts := s.pct.TotalMs
	fs := s.pct.TTFBMs
	tls := s.pct.TLSMs
	as := s.pct.AudioS

	return fmt.Sprintf(
		"        %5s %5s %5s %5s %5s\n"+
			"total   %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"ttfb    %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"tls     %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"audio   %4.1fs %4.1fs %4.1fs %4.1fs %4.1fs",
		"min", "p50", "p90", "p95", "max",
		ts[0], ts[1], ts[2], ts[3], ts[4],
		fs[0], fs[1], fs[2], fs[3], fs[4],
		tls[0], tls[1], tls[2], tls[3], tls[4],
		as[0], as[1], as[2], as[3], as[4],
	)
}
