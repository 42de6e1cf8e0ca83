package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics registered at package init, following the teacher's
// engine/metrics.go pattern: counters and gauges under a
// "swdiag_engine" namespace, exported to whatever collector the
// embedder's own HTTP handler already scrapes.
var (
	// 测试派发总数
	testRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swdiag",
			Subsystem: "engine",
			Name:      "test_runs_total",
			Help:      "Total test dispatches by tier and result",
		},
		[]string{"tier", "result"},
	)

	// 根因分类总数
	rootCauseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swdiag",
			Subsystem: "engine",
			Name:      "root_cause_transitions_total",
			Help:      "Total RCI RootCause classifications",
		},
		[]string{"rule"},
	)

	// 组件健康度
	componentHealthGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "swdiag",
			Subsystem: "engine",
			Name:      "component_health",
			Help:      "Current component health (0-1000, §4.8)",
		},
		[]string{"component"},
	)
)

func init() {
	// 注册指标
	prometheus.MustRegister(testRunsTotal, rootCauseTransitionsTotal, componentHealthGauge)
}

func observeTestRun(tier, result string) {
	testRunsTotal.WithLabelValues(tier, result).Inc()
}

func observeRootCause(rule string) {
	rootCauseTransitionsTotal.WithLabelValues(rule).Inc()
}

func observeHealth(component string, health int) {
	componentHealthGauge.WithLabelValues(component).Set(float64(health))
}
