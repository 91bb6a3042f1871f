package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rancher-error-digest/internal/model"
)

// Recorder tracks per-run statistics and delivery outcomes.
type Recorder interface {
	ObserveRun(stats model.RunStats, duration time.Duration, err error)
	ObserveDelivery(sink string, err error)
}

type prometheusRecorder struct {
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	linesScanned  prometheus.Counter
	entriesTotal  *prometheus.CounterVec
	groups        prometheus.Gauge
	deliveryTotal *prometheus.CounterVec
}

func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	factory := promauto.With(reg)
	return &prometheusRecorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_runs_total",
				Help: "Total digest runs by status.",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "digest_run_duration_seconds",
				Help:    "Duration of a digest run including fetch and delivery.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		linesScanned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_lines_scanned_total",
				Help: "Total raw log lines scanned.",
			},
		),
		entriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_entries_in_window_total",
				Help: "Total classified entries inside the window by severity.",
			},
			[]string{"severity"},
		),
		groups: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "digest_groups",
				Help: "Distinct messages reported by the last successful run.",
			},
		),
		deliveryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_delivery_total",
				Help: "Total digest deliveries by sink and status.",
			},
			[]string{"sink", "status"},
		),
	}
}

func (r *prometheusRecorder) ObserveRun(stats model.RunStats, duration time.Duration, err error) {
	r.runDuration.Observe(duration.Seconds())
	if err != nil {
		r.runsTotal.WithLabelValues("error").Inc()
		return
	}
	r.runsTotal.WithLabelValues("success").Inc()
	r.linesScanned.Add(float64(stats.LinesScanned))
	r.entriesTotal.WithLabelValues(model.SeverityError.String()).Add(float64(stats.Errors))
	r.entriesTotal.WithLabelValues(model.SeverityWarning.String()).Add(float64(stats.Warnings))
	r.groups.Set(float64(stats.Groups))
}

func (r *prometheusRecorder) ObserveDelivery(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.deliveryTotal.WithLabelValues(sink, status).Inc()
}
