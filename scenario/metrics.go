package scenario

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusScenarioRuns          *prometheus.CounterVec
	prometheusScenarioState         prometheus.Gauge
	prometheusScenarioPhaseDuration *prometheus.HistogramVec
	prometheusStatusQueries         *prometheus.CounterVec
	prometheusObservedHeight        *prometheus.GaugeVec
	prometheusHeightRegressions     *prometheus.CounterVec
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusScenarioRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcsync",
			Subsystem: "scenario",
			Name:      "runs",
			Help:      "Number of scenario runs by final state",
		},
		[]string{"state"},
	)

	prometheusScenarioState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gcsync",
			Subsystem: "scenario",
			Name:      "state",
			Help:      "Current scenario state: 0 building, 1 degraded, 2 recovering, 3 verified, 4 failed",
		},
	)

	prometheusScenarioPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gcsync",
			Subsystem: "scenario",
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each scenario phase",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	prometheusStatusQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcsync",
			Subsystem: "status",
			Name:      "queries",
			Help:      "Number of node status queries by node and result",
		},
		[]string{"node", "result"},
	)

	prometheusObservedHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gcsync",
			Subsystem: "status",
			Name:      "observed_height",
			Help:      "Last chain height observed per node",
		},
		[]string{"node"},
	)

	prometheusHeightRegressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gcsync",
			Subsystem: "status",
			Name:      "height_regressions",
			Help:      "Number of observations lower than the previous one for the same node",
		},
		[]string{"node"},
	)
}
