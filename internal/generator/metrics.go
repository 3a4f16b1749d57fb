package generator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts what the stream endpoint serves. Each Metrics owns its
// registry so tests and multiple servers never collide.
type Metrics struct {
	registry       *prometheus.Registry
	streamsStarted *prometheus.CounterVec
	streamsActive  prometheus.Gauge
	bytesServed    prometheus.Counter
	rejected       prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		streamsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speedo_streams_started_total",
			Help: "Streams opened, by mode (bounded or unbounded).",
		}, []string{"mode"}),
		streamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speedo_streams_active",
			Help: "Streams currently being written.",
		}),
		bytesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "speedo_bytes_served_total",
			Help: "Payload bytes written to clients.",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "speedo_requests_rejected_total",
			Help: "Requests rejected for an invalid size.",
		}),
	}
}

func (m *Metrics) streamOpened(size Size) {
	mode := "bounded"
	if size.Unbounded {
		mode = "unbounded"
	}
	m.streamsStarted.WithLabelValues(mode).Inc()
	m.streamsActive.Inc()
}

func (m *Metrics) streamClosed(written int64) {
	m.streamsActive.Dec()
	m.bytesServed.Add(float64(written))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
