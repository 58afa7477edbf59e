// Package metrics exports rest detector activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// Metrics counts processed samples and finalized cycles. It implements
// restmon.Observer.
type Metrics struct {
	reg prometheus.Gatherer

	samples     prometheus.Counter
	outOfWindow prometheus.Counter
	started     prometheus.Counter
	emitted     prometheus.Counter
	discarded   *prometheus.CounterVec
	open        prometheus.Gauge
	duration    prometheus.Histogram
	writeErrors *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restmon_samples_total",
			Help: "Telemetry samples processed.",
		}),
		outOfWindow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restmon_samples_out_of_window_total",
			Help: "Samples that fell outside the monitoring window.",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restmon_cycles_started_total",
			Help: "Rest cycles opened.",
		}),
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restmon_cycles_emitted_total",
			Help: "Rest cycles finalized and emitted.",
		}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restmon_cycles_discarded_total",
			Help: "Rest cycles finalized and dropped, by reason.",
		}, []string{"reason"}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restmon_cycle_open",
			Help: "1 while a rest cycle is open.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "restmon_cycle_duration_seconds",
			Help:    "Duration of emitted rest cycles.",
			Buckets: []float64{3600, 2 * 3600, 4 * 3600, 6 * 3600, 8 * 3600, 12 * 3600, 24 * 3600},
		}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restmon_write_errors_total",
			Help: "Failed writes of emitted cycles, by destination.",
		}, []string{"dest"}),
	}

	reg.MustRegister(
		m.samples,
		m.outOfWindow,
		m.started,
		m.emitted,
		m.discarded,
		m.open,
		m.duration,
		m.writeErrors,
	)

	// Expose both reasons at zero from the start.
	m.discarded.WithLabelValues(string(logic.DiscardTooShort))
	m.discarded.WithLabelValues(string(logic.DiscardRangeGain))

	return m
}

// Observe records the outcome of one processed sample.
func (m *Metrics) Observe(_ logic.Sample, r logic.Result) {
	if m == nil {
		return
	}
	m.samples.Inc()
	if r.OutOfWindow {
		m.outOfWindow.Inc()
	}

	switch r.Action {
	case logic.ActionStarted:
		m.started.Inc()
		m.open.Set(1)
	case logic.ActionEmitted:
		m.emitted.Inc()
		m.open.Set(0)
		if r.Cycle != nil {
			m.duration.Observe(r.Cycle.Duration().Seconds())
		}
	case logic.ActionDiscarded:
		m.discarded.WithLabelValues(string(r.Reason)).Inc()
		m.open.Set(0)
	}
}

// WriteError counts a failed write of an emitted cycle to dest
// ("mqtt", "history" or "dashboard").
func (m *Metrics) WriteError(dest string) {
	if m == nil {
		return
	}
	m.writeErrors.WithLabelValues(dest).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
