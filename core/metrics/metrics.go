// Package metrics holds the Prometheus collectors of the bot and the HTTP
// endpoint that exposes them.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "suggestbot"

// Metrics contains all Prometheus metrics of the suggestion pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Updates         *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	AlbumRejections prometheus.Counter
	Throttled       prometheus.Counter
	Decisions       *prometheus.CounterVec
	ExpiryFirings   *prometheus.CounterVec
	GatewayFailures *prometheus.CounterVec
	PendingExpiry   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	if err := m.registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register suggestion metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, partitioned by kind.",
		},
		[]string{"kind"},
	)
	m.Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Accepted suggestions partitioned by content kind.",
		},
		[]string{"kind"},
	)
	m.AlbumRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "album_rejections_total",
		Help:      "Albums rejected for exceeding the item limit.",
	})
	m.Throttled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttled_total",
		Help:      "Submissions refused by the per-user cooldown.",
	})
	m.Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Moderator actions partitioned by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	m.ExpiryFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_firings_total",
			Help:      "Retention tasks fired, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.GatewayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_failures_total",
			Help:      "Failed Telegram calls partitioned by operation.",
		},
		[]string{"op"},
	)
	m.PendingExpiry = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "expiry_pending",
		Help:      "Retention tasks currently scheduled.",
	})
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Updates, m.Submissions, m.AlbumRejections, m.Throttled,
		m.Decisions, m.ExpiryFirings, m.GatewayFailures, m.PendingExpiry,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveUpdate counts one inbound update.
func (m *Metrics) ObserveUpdate(kind string) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(kind).Inc()
}

// ObserveSubmission counts one persisted suggestion.
func (m *Metrics) ObserveSubmission(kind string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(kind).Inc()
}

// ObserveAlbumRejected counts an album dropped for exceeding the limit.
func (m *Metrics) ObserveAlbumRejected() {
	if m == nil {
		return
	}
	m.AlbumRejections.Inc()
}

// ObserveThrottled counts a submission refused by the cooldown.
func (m *Metrics) ObserveThrottled() {
	if m == nil {
		return
	}
	m.Throttled.Inc()
}

// ObserveDecision counts one moderation action result.
func (m *Metrics) ObserveDecision(action, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(action, outcome).Inc()
}

// ObserveExpiry counts one fired retention task.
func (m *Metrics) ObserveExpiry(outcome string) {
	if m == nil {
		return
	}
	m.ExpiryFirings.WithLabelValues(outcome).Inc()
}

// ObserveGatewayFailure counts one failed Telegram call.
func (m *Metrics) ObserveGatewayFailure(op string) {
	if m == nil {
		return
	}
	m.GatewayFailures.WithLabelValues(op).Inc()
}

// SetPendingExpiry reports the number of scheduled retention tasks.
func (m *Metrics) SetPendingExpiry(n int) {
	if m == nil {
		return
	}
	m.PendingExpiry.Set(float64(n))
}
