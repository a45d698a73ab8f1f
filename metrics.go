package flavia

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of prometheus collectors the core exposes for a host
// process to scrape. Registered on a private registry (rather than the
// global default) so multiple Settings/Agent instances in one process don't
// collide on duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls        *prometheus.CounterVec
	ToolErrors       *prometheus.CounterVec
	AgentIterations  prometheus.Counter
	AgentSpawns      *prometheus.CounterVec
	RetrievalLatency *prometheus.HistogramVec
	IndexUpserts     prometheus.Counter
	IndexedDocs      prometheus.Gauge
	GroundingReminders *prometheus.CounterVec
}

// NewMetrics builds a fresh collector set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ToolCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "flavia",
			Name:      "tool_calls_total",
			Help:      "Tool invocations dispatched by the agent loop, by tool name.",
		}, []string{"tool"}),
		ToolErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "flavia",
			Name:      "tool_errors_total",
			Help:      "Tool invocations whose result began with \"Error:\", by tool name.",
		}, []string{"tool"}),
		AgentIterations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "flavia",
			Name:      "agent_iterations_total",
			Help:      "LLM round trips performed across all agent runs.",
		}),
		AgentSpawns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "flavia",
			Name:      "agent_spawns_total",
			Help:      "Sub-agents spawned, by kind (predefined|dynamic).",
		}, []string{"kind"}),
		RetrievalLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flavia",
			Name:      "retrieval_stage_seconds",
			Help:      "search_chunks retrieval latency in seconds, by stage (only \"total\" is recorded; per-stage router/vector/fts/fusion timings live in the debug trace).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		IndexUpserts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "flavia",
			Name:      "index_chunks_upserted_total",
			Help:      "Chunks written to the index store across all indexing runs.",
		}),
		IndexedDocs: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "flavia",
			Name:      "index_documents",
			Help:      "Distinct documents present in the index store after the last indexing run.",
		}),
		GroundingReminders: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "flavia",
			Name:      "grounding_reminders_total",
			Help:      "Corrective reminders injected by the agent loop's policies, by kind (mention|coverage|comparison).",
		}, []string{"kind"}),
	}
	return m
}

// Handler exposes the registry in the Prometheus text exposition format for
// a host process to mount; the core never starts its own HTTP listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRetrievalLatency records one end-to-end search_chunks call against
// the "total" stage bucket. The retriever's own router/vector/fts/fusion
// breakdown is only available via its debug trace (.flavia/rag_debug.jsonl),
// not as a return value, so per-stage buckets aren't populated from here.
func (m *Metrics) ObserveRetrievalLatency(seconds float64) {
	m.RetrievalLatency.WithLabelValues("total").Observe(seconds)
}
