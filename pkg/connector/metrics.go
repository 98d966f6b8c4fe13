package connector

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the connector's Prometheus collectors on a dedicated registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived prometheus.Counter
	eventsSubmitted  prometheus.Counter
	messagesDeleted  prometheus.Counter
	deliveryErrors   *prometheus.CounterVec
	unlockFailures   prometheus.Counter
	pollCycles       *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
}

// NewMetrics creates and registers the connector collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from the queue under a lock.",
		}),
		eventsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_submitted_total",
			Help:      "Events accepted by the downstream pipeline.",
		}),
		messagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages deleted from the queue after submission.",
		}),
		deliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Poll cycles that ended with a delivery error, by failing stage.",
		}, []string{"stage"}),
		unlockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlock_failures_total",
			Help:      "Unlock attempts that failed and were left to lock expiry.",
		}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome (ready, backoff, error).",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.messagesReceived,
		m.eventsSubmitted,
		m.messagesDeleted,
		m.deliveryErrors,
		m.unlockFailures,
		m.pollCycles,
		m.cycleDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) messageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) eventSubmitted() {
	if m != nil {
		m.eventsSubmitted.Inc()
	}
}

func (m *Metrics) messageDeleted() {
	if m != nil {
		m.messagesDeleted.Inc()
	}
}

func (m *Metrics) unlockFailed() {
	if m != nil {
		m.unlockFailures.Inc()
	}
}

func (m *Metrics) observeCycle(status Status, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
	if err != nil {
		m.pollCycles.WithLabelValues("error").Inc()
		var de *DeliveryError
		if errors.As(err, &de) {
			m.deliveryErrors.WithLabelValues(string(de.Stage)).Inc()
		}
		return
	}
	if status == Ready {
		m.pollCycles.WithLabelValues("ready").Inc()
	} else {
		m.pollCycles.WithLabelValues("backoff").Inc()
	}
}
