package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	Items         *prometheus.CounterVec
	Passes        *prometheus.CounterVec
	PassDuration  *prometheus.HistogramVec
	LedgerSize    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_fetch_attempts_total",
				Help: "HTTP attempts made to download thumbnails.",
			},
			[]string{"status"}, // ok, failed
		),
		Items: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_items_total",
				Help: "Items processed by pass and outcome.",
			},
			[]string{"pass", "outcome"}, // outcome: success or a skip reason
		),
		Passes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_passes_total",
				Help: "Completed pipeline passes.",
			},
			[]string{"pass", "status"},
		),
		PassDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "image_pass_duration_seconds",
				Help:    "Wall time of pipeline passes.",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 10800},
			},
			[]string{"pass"},
		),
		LedgerSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "image_ledger_failed_ids",
			Help: "Ids in the failure ledger after the last pass.",
		}),
	}
}

func (m *Metrics) ObserveFetchAttempt(ok bool) {
	if m == nil {
		return
	}
	status := "failed"
	if ok {
		status = "ok"
	}
	m.FetchAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveItem(pass, outcome string) {
	if m == nil {
		return
	}
	m.Items.WithLabelValues(pass, outcome).Inc()
}

func (m *Metrics) ObservePass(pass string, err error, took time.Duration, ledgerSize int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	} else {
		m.LedgerSize.Set(float64(ledgerSize))
	}
	m.Passes.WithLabelValues(pass, status).Inc()
	m.PassDuration.WithLabelValues(pass).Observe(took.Seconds())
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
