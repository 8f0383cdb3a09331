package compliance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks compliance audit emission.
type Metrics struct {
	eventsEmitted   prometheus.Counter
	persistFailures prometheus.Counter
	persistDuration prometheus.Histogram
}

// NewMetrics registers the compliance audit metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "obconsent_audit_compliance_events_total",
			Help: "Compliance audit events persisted",
		}),
		persistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "obconsent_audit_compliance_failures_total",
			Help: "Compliance audit events that failed to persist",
		}),
		persistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "obconsent_audit_compliance_persist_seconds",
			Help:    "Time spent persisting a compliance audit event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// observe is a no-op on a nil receiver.
func (m *Metrics) observe(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.persistFailures.Inc()
		return
	}
	m.persistDuration.Observe(d.Seconds())
	m.eventsEmitted.Inc()
}
