// Package metrics provides Prometheus metrics for the scoring and scheduling jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector on a private registry. A nil *Manager records nothing.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	contactsScored   *prometheus.CounterVec
	scoresUpdated    *prometheus.CounterVec
	batchErrors      *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	queueGenerated   *prometheus.CounterVec
	rateLimitSkips   prometheus.Counter
	sendsRecorded    prometheus.Counter
	cooldownsEntered prometheus.Counter
	duplicatePairs   *prometheus.CounterVec
	merges           *prometheus.CounterVec
	goingCold        prometheus.Counter
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers collectors on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// NewManager creates a metrics manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: "cadence"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.contactsScored = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "contacts_scored_total",
		Help:      "Contacts processed by scoring jobs",
	}, []string{"job"})

	m.scoresUpdated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "scores_updated_total",
		Help:      "Stored scores that changed",
	}, []string{"job"})

	m.batchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "batch_errors_total",
		Help:      "Per-contact failures inside batch jobs",
	}, []string{"job"})

	m.batchDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of batch jobs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job", "status"})

	m.queueGenerated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "queue_items_generated_total",
		Help:      "Queue items created by the daily generator",
	}, []string{"action_type"})

	m.rateLimitSkips = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rate_limit_skips_total",
		Help:      "Candidates left out of a queue because the send budget was exhausted",
	})

	m.sendsRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sends_recorded_total",
		Help:      "Connection requests recorded against the rate limiter",
	})

	m.cooldownsEntered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "cooldowns_entered_total",
		Help:      "Cooldown windows started after a soft ban",
	})

	m.duplicatePairs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "duplicate_pairs_total",
		Help:      "Duplicate pairs detected",
	}, []string{"confidence"})

	m.merges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "merges_total",
		Help:      "Contacts merged",
	}, []string{"merged_by"})

	m.goingCold = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "going_cold_total",
		Help:      "Contacts newly flagged as going cold",
	})
}

// Registry exposes the private registry for the HTTP handler.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveBatch records the outcome of one batch job.
func (m *Manager) ObserveBatch(job, status string, processed, updated, errors int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.contactsScored.WithLabelValues(job).Add(float64(processed))
	m.scoresUpdated.WithLabelValues(job).Add(float64(updated))
	m.batchErrors.WithLabelValues(job).Add(float64(errors))
	m.batchDuration.WithLabelValues(job, status).Observe(elapsed.Seconds())
}

func (m *Manager) RecordQueueItems(actionType string, n int) {
	if m == nil {
		return
	}
	m.queueGenerated.WithLabelValues(actionType).Add(float64(n))
}

func (m *Manager) RecordRateLimitSkips(n int) {
	if m == nil {
		return
	}
	m.rateLimitSkips.Add(float64(n))
}

func (m *Manager) RecordSend() {
	if m == nil {
		return
	}
	m.sendsRecorded.Inc()
}

func (m *Manager) RecordCooldown() {
	if m == nil {
		return
	}
	m.cooldownsEntered.Inc()
}

func (m *Manager) RecordDuplicatePair(confidence string) {
	if m == nil {
		return
	}
	m.duplicatePairs.WithLabelValues(confidence).Inc()
}

func (m *Manager) RecordMerge(mergedBy string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(mergedBy).Inc()
}

func (m *Manager) RecordGoingCold(n int) {
	if m == nil {
		return
	}
	m.goingCold.Add(float64(n))
}
