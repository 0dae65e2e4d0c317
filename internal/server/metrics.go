package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the service-level Prometheus collectors.
type Metrics struct {
	ChatRequests  *prometheus.CounterVec
	ChatDuration  prometheus.Histogram
	SessionsSwept prometheus.Counter
}

// NewMetrics registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ChatRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "zonewise_chat_requests_total",
			Help: "Chat turns by outcome.",
		}, []string{"outcome"}),
		ChatDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "zonewise_chat_duration_seconds",
			Help:    "Wall-clock duration of successful chat turns.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		SessionsSwept: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "zonewise_sessions_swept_total",
			Help: "Session status rows evicted past the retention window.",
		}),
	}
}
