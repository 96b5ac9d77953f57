package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the monitor subsystem.
type Metrics struct {
	SweepsTotal          *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	ChannelsScanned      prometheus.Counter
	ChannelsFailed       prometheus.Counter
	MessagesScanned      prometheus.Counter
	DecisionsTotal       *prometheus.CounterVec
	BreachesCleared      prometheus.Counter
	AlertsSentTotal      prometheus.Counter
	DispatchFailedTotal  prometheus.Counter
	TransportErrorsTotal prometheus.Counter
	OpenBreaches         prometheus.Gauge
}

// NewMetrics registers and returns monitor metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slawatch_sweeps_total",
			Help: "Total sweep runs by outcome.",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slawatch_sweep_duration_seconds",
			Help:    "Duration of sweep runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		ChannelsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_channels_scanned_total",
			Help: "Total channels scanned across sweeps.",
		}),
		ChannelsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_channels_failed_total",
			Help: "Total channels skipped due to transport failures.",
		}),
		MessagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_messages_scanned_total",
			Help: "Total window messages evaluated.",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slawatch_policy_decisions_total",
			Help: "Policy decisions by outcome.",
		}, []string{"decision"}),
		BreachesCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_breaches_cleared_total",
			Help: "Alert records cleared after a qualifying response.",
		}),
		AlertsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_alerts_sent_total",
			Help: "Breach alerts successfully dispatched.",
		}),
		DispatchFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_dispatch_batches_failed_total",
			Help: "Alert batches whose send failed.",
		}),
		TransportErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slawatch_transport_errors_total",
			Help: "Transport errors that caused a message to be skipped.",
		}),
		OpenBreaches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slawatch_open_breaches",
			Help: "Tracked breach records after the last sweep.",
		}),
	}

	reg.MustRegister(
		m.SweepsTotal,
		m.SweepDuration,
		m.ChannelsScanned,
		m.ChannelsFailed,
		m.MessagesScanned,
		m.DecisionsTotal,
		m.BreachesCleared,
		m.AlertsSentTotal,
		m.DispatchFailedTotal,
		m.TransportErrorsTotal,
		m.OpenBreaches,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnChannel: func(failed bool, messages int) {
			if failed {
				m.ChannelsFailed.Inc()
				return
			}
			m.ChannelsScanned.Inc()
			m.MessagesScanned.Add(float64(messages))
		},
		OnDecision: func(d Decision) {
			m.DecisionsTotal.WithLabelValues(d.String()).Inc()
		},
		OnTransportError: func() {
			m.TransportErrorsTotal.Inc()
		},
		OnComplete: func(r *Report) {
			m.SweepDuration.Observe(r.Duration.Seconds())
			m.BreachesCleared.Add(float64(r.Cleared))
			m.AlertsSentTotal.Add(float64(r.AlertsSent))
			m.DispatchFailedTotal.Add(float64(r.DispatchFailed))
		},
	}
}

// ObserveSweep records the run outcome after the final flush.
func (m *Metrics) ObserveSweep(r *Report, flushed bool) {
	outcome := "ok"
	switch {
	case !flushed:
		outcome = "flush_failed"
	case r.DeadlineHit:
		outcome = "deadline"
	case r.ChannelsFailed > 0 || r.DispatchFailed > 0:
		outcome = "partial"
	}
	m.SweepsTotal.WithLabelValues(outcome).Inc()
}

// SetOpenBreaches updates the tracked-record gauge.
func (m *Metrics) SetOpenBreaches(n int) {
	m.OpenBreaches.Set(float64(n))
}
