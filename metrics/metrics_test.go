package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIsolatedPerInstance(t *testing.T) {
	a, b := New(), New()
	a.BlocksAdmitted.Inc()
	a.BlocksAdmitted.Inc()
	b.BlocksAdmitted.Inc()

	if got := testutil.ToFloat64(a.BlocksAdmitted); got != 2 {
		t.Errorf("a = %v, want 2", got)
	}
	if got := testutil.ToFloat64(b.BlocksAdmitted); got != 1 {
		t.Errorf("b = %v, want 1", got)
	}
}

func TestUtteranceOutcomes(t *testing.T) {
	m := New()
	m.Utterances.WithLabelValues(OutcomeEmpty).Inc()
	m.Utterances.WithLabelValues(OutcomeTranscribed).Add(3)

	if got := testutil.ToFloat64(m.Utterances.WithLabelValues(OutcomeTranscribed)); got != 3 {
		t.Errorf("transcribed = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.Utterances); n != 2 {
		t.Errorf("series = %d, want 2", n)
	}
}

func TestWatchEvents(t *testing.T) {
	m := New()
	subs, dropped := 2, 3
	m.WatchEvents(func() int { return subs }, func() int { return dropped })
	m.WatchEvents(func() int { return 0 }, func() int { return 0 })

	want := `
# HELP hark_event_subscribers Clients connected to the event feed
# TYPE hark_event_subscribers gauge
hark_event_subscribers 2
# HELP hark_events_dropped_total Records skipped for slow event subscribers
# TYPE hark_events_dropped_total counter
hark_events_dropped_total 3
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want),
		"hark_event_subscribers", "hark_events_dropped_total"); err != nil {
		t.Error(err)
	}
}
