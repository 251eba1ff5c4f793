/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Ambient observability the teacher's PTO engine never needed but the
  wider example pack wires routinely for ingest/process pipelines:
  counters for ingest outcomes and processor terminal transitions, a
  histogram for request latency.

SEE ALSO:
  - api/server.go: mounts promhttp.Handler() at GET /metrics
  - api/handlers.go: records IngestOutcomes and RequestDuration
  - internal/processor/processor.go: records ProcessorTransitions
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestOutcomes counts webhook ingests by outcome: scheduled (a
	// processor task was started), no_schedule, error. The Arbiter's
	// classification (fresh, same or conflicting duplicate) is not a label.
	IngestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txwebhook_ingest_outcomes_total",
		Help: "Count of webhook ingests by idempotency outcome.",
	}, []string{"outcome"})

	// ProcessorTransitions counts background processor terminal
	// transitions by result: processed, failed, interrupted.
	ProcessorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txwebhook_processor_transitions_total",
		Help: "Count of background processor terminal transitions.",
	}, []string{"result"})

	// RequestDuration observes HTTP handler latency in seconds, by route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "txwebhook_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
