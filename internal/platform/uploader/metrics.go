package uploader

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the uploader's prometheus collectors.
type Metrics struct {
	Uploads *prometheus.CounterVec
	Dropped prometheus.Counter
}

// NewMetrics builds and registers the uploader collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "file_uploads_total",
				Help: "File upload attempts by entity kind, origin and outcome.",
			},
			[]string{"kind", "origin", "outcome"},
		),
		Dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "file_upload_queue_dropped_total",
				Help: "Async upload repeats dropped because the queue was full.",
			},
		),
	}
	reg.MustRegister(m.Uploads, m.Dropped)
	return m
}
