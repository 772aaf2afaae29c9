package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instrumentation. Grounded on
// kubernaut's go.mod (prometheus/client_golang) rather than the
// teacher's common/metrics/system.go, which is a one-shot
// runtime.NumGoroutine()-style system report, not a live scrape
// surface — it has no registry, no HTTP handler, and nothing that
// accumulates over time, so it isn't the right base for per-node,
// per-workflow counters.
type Metrics struct {
	NodesExecuted   *prometheus.CounterVec
	NodeDuration    *prometheus.HistogramVec
	ExecutionsTotal *prometheus.CounterVec
	BusyRejections  prometheus.Counter
	AIRetries       prometheus.Counter
}

// NewMetrics registers the engine's metrics against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		NodesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "weavegraph_nodes_executed_total",
			Help: "Node executions by type and resulting status.",
		}, []string{"node_type", "status"}),
		NodeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weavegraph_node_duration_seconds",
			Help:    "Per-node execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_type"}),
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "weavegraph_executions_total",
			Help: "execute_nodes invocations by outcome (completed, halted, busy).",
		}, []string{"outcome"}),
		BusyRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weavegraph_busy_rejections_total",
			Help: "execute_nodes calls rejected because a workflow was already running.",
		}),
		AIRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "weavegraph_ai_retries_total",
			Help: "Retry attempts issued by the AI collaborator's backoff loop.",
		}),
	}
}
