// Package metrics holds the Prometheus collectors shared by the capture
// pipeline, the transcription worker and the HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hark"

// Utterance outcomes.
const (
	OutcomeEmpty       = "empty"
	OutcomeTranscribed = "transcribed"
	OutcomeNoSpeech    = "no_speech"
	OutcomeFailed      = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	// Capture
	BlocksAdmitted  prometheus.Counter
	BlocksDiscarded prometheus.Counter
	CallbackPanics  prometheus.Counter
	QueueDepth      prometheus.Gauge
	Listening       prometheus.Gauge

	// Utterances
	Utterances       *prometheus.CounterVec
	UtteranceSeconds prometheus.Histogram

	// Transcription
	TranscriptionDuration *prometheus.HistogramVec
	TranscriptionFailures *prometheus.CounterVec
	ActionFailures        prometheus.Counter
	SinkErrors            *prometheus.CounterVec

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BlocksAdmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_admitted_total",
			Help:      "Audio blocks enqueued while listening",
		}),
		BlocksDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_discarded_total",
			Help:      "Audio blocks dropped at the gate while muted",
		}),
		CallbackPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_panics_total",
			Help:      "Panics recovered inside the capture callback",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Blocks waiting in the transfer queue",
		}),
		Listening: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "1 while the listen gate is open",
		}),

		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Finalized utterances by outcome",
		}, []string{"outcome"}),
		UtteranceSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_seconds",
			Help:      "Audio length of finalized utterances",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),

		TranscriptionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Wall time of transcription calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Failed transcription calls",
		}, []string{"provider"}),
		ActionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Action generation calls that failed or returned malformed output",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink publishes",
		}, []string{"sink"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// WatchEvents exports the event feed's subscriber count and drop counter.
// Calling it again on the same Metrics is a no-op.
func (m *Metrics) WatchEvents(subscribers, dropped func() int) {
	for _, c := range []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Clients connected to the event feed",
		}, func() float64 { return float64(subscribers()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Records skipped for slow event subscribers",
		}, func() float64 { return float64(dropped()) }),
	} {
		m.registry.Register(c)
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
