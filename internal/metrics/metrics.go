// Package metrics exports loop lifecycle counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// Collector implements loop.Observer on top of its own registry, so several
// collectors can coexist in one process.
type Collector struct {
	reg *prometheus.Registry

	started    *prometheus.CounterVec
	finished   *prometheus.CounterVec
	iterations *prometheus.CounterVec
	active     prometheus.Gauge
	similarity prometheus.Histogram
	duration   *prometheus.HistogramVec
	loopLength prometheus.Histogram
}

// NewCollector registers the loopguard metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		started: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loopguard_loops_started_total",
			Help: "Loops started, by workflow",
		}, []string{"workflow"}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loopguard_loops_finished_total",
			Help: "Loops that reached a terminal state, by status and exit kind",
		}, []string{"status", "kind"}),
		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loopguard_iterations_total",
			Help: "Loop iterations recorded, by workflow",
		}, []string{"workflow"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "loopguard_active_loops",
			Help: "Loops currently running",
		}),
		similarity: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loopguard_iteration_similarity",
			Help:    "Similarity between consecutive iteration outputs",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 1},
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loopguard_loop_duration_seconds",
			Help:    "Wall time from loop start to terminal state",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900, 3600},
		}, []string{"status"}),
		loopLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loopguard_loop_iterations",
			Help:    "Iterations per finished loop",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
		}),
	}
}

func workflowLabel(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

// LoopStarted counts a new running loop.
func (c *Collector) LoopStarted(workflowID string) {
	c.started.WithLabelValues(workflowLabel(workflowID)).Inc()
	c.active.Inc()
}

// IterationRecorded counts one iteration and its similarity to the previous output.
func (c *Collector) IterationRecorded(workflowID string, similarity float64) {
	c.iterations.WithLabelValues(workflowLabel(workflowID)).Inc()
	c.similarity.Observe(similarity)
}

// LoopFinished moves a loop out of the active gauge.
func (c *Collector) LoopFinished(_ string, status schema.LoopStatus, kind schema.ExitKind, iterations int, elapsed time.Duration) {
	k := string(kind)
	if k == "" {
		k = "none"
	}
	c.finished.WithLabelValues(string(status), k).Inc()
	c.active.Dec()
	c.duration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
	c.loopLength.Observe(float64(iterations))
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
