package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Number of finished provisioning script runs by kind and result.",
		}, []string{"kind", "result"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Wall time of provisioning script runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"kind"},
	)
	jobOutputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "output_lines_total",
			Help:      "Lines forwarded from provisioning scripts by stream.",
		}, []string{"stream"},
	)
	jobCancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "cancellations_total",
			Help:      "Number of cancel requests that found a tracked job.",
		},
	)
	jobActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "active",
			Help:      "1 while a job of the given kind holds its slot.",
		}, []string{"kind"},
	)
	windowAutomation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmpilot",
			Subsystem: "window",
			Name:      "automation_total",
			Help:      "Terminal states reached by remote desktop window automation.",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{jobRuns, jobDuration, jobOutputLines, jobCancellations, jobActive, windowAutomation, jobCPU, jobMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func IncJobRun(kind, result string) {
	if regOK.Load() {
		jobRuns.WithLabelValues(kind, result).Inc()
	}
}

func ObserveJobDuration(kind string, seconds float64) {
	if regOK.Load() {
		jobDuration.WithLabelValues(kind).Observe(seconds)
	}
}

func IncOutputLine(stream string) {
	if regOK.Load() {
		jobOutputLines.WithLabelValues(stream).Inc()
	}
}

func IncCancellation() {
	if regOK.Load() {
		jobCancellations.Inc()
	}
}

func SetJobActive(kind string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		jobActive.WithLabelValues(kind).Set(v)
	}
}

func IncWindowAutomation(state string) {
	if regOK.Load() {
		windowAutomation.WithLabelValues(state).Inc()
	}
}
