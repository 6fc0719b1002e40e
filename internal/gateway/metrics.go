package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the pipeline stages and per-channel delivery outcomes.
// All methods are nil-safe so tests can run without a registry.
type Metrics struct {
	requests *prometheus.CounterVec
	sends    *prometheus.CounterVec
	dispatch prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smsgate_requests_total",
			Help: "Inbound forward requests by terminal outcome.",
		}, []string{"outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smsgate_channel_sends_total",
			Help: "Channel delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		dispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smsgate_dispatch_seconds",
			Help:    "Wall time of the concurrent channel fan-out.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.requests, m.sends, m.dispatch)
	return m
}

func (m *Metrics) Request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChannelSend(channel string, success bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if success {
		outcome = "ok"
	}
	m.sends.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) DispatchSeconds(sec float64) {
	if m == nil {
		return
	}
	m.dispatch.Observe(sec)
}
