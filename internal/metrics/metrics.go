package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsSent     prometheus.Counter
	NotificationsFailed   prometheus.Counter
	BatchDuration         prometheus.Histogram
	ProcessorRuns         *prometheus.CounterVec
	QueueItems            *prometheus.GaugeVec
	InterestSubscriptions prometheus.Gauge
	RestockEvents         *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restock_notifications_sent_total",
			Help: "Total number of restock emails accepted by the gateway.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restock_notifications_failed_total",
			Help: "Total number of queue item attempts that ended in failure.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "restock_batch_duration_seconds",
			Help:    "Wall time of one queue processor run, pacing included.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		ProcessorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_processor_runs_total",
			Help: "Queue processor invocations by outcome.",
		}, []string{"outcome"}),
		QueueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "restock_queue_items",
			Help: "Queue items per status as of the last processor run.",
		}, []string{"status"}),
		InterestSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restock_interest_cache_subscriptions",
			Help: "Pending subscriptions held in the interest cache.",
		}),
		RestockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_events_total",
			Help: "Stock change events received, by whether they were a restock.",
		}, []string{"triggered"}),
	}

	reg.MustRegister(
		m.NotificationsSent,
		m.NotificationsFailed,
		m.BatchDuration,
		m.ProcessorRuns,
		m.QueueItems,
		m.InterestSubscriptions,
		m.RestockEvents,
	)

	return m
}

// ProcessorHooks returns the callbacks expected by worker.NewProcessor.
// Centralises the prometheus observation calls so the worker stays import-free.
func (m *Metrics) ProcessorHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnSent:   m.NotificationsSent.Inc,
		OnFailed: m.NotificationsFailed.Inc,
		OnRun: func(outcome string, elapsed time.Duration) {
			m.ProcessorRuns.WithLabelValues(outcome).Inc()
			if outcome == worker.OutcomeCompleted || outcome == worker.OutcomeError {
				m.BatchDuration.Observe(elapsed.Seconds())
			}
		},
		OnSummary: m.ObserveQueue,
		OnInterest: func(n int) {
			m.InterestSubscriptions.Set(float64(n))
		},
	}
}

func (m *Metrics) ObserveQueue(s domain.StatusSummary) {
	m.QueueItems.WithLabelValues(string(domain.StatusPending)).Set(float64(s.Pending))
	m.QueueItems.WithLabelValues(string(domain.StatusProcessing)).Set(float64(s.Processing))
	m.QueueItems.WithLabelValues(string(domain.StatusSent)).Set(float64(s.Sent))
	m.QueueItems.WithLabelValues(string(domain.StatusFailed)).Set(float64(s.Failed))
}

// ObserveRestock counts one stock change event.
func (m *Metrics) ObserveRestock(triggered bool) {
	label := "false"
	if triggered {
		label = "true"
	}
	m.RestockEvents.WithLabelValues(label).Inc()
}
