package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal     *prometheus.CounterVec
	tokensTotal       *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	fallbacksTotal    *prometheus.CounterVec
	failedCyclesTotal *prometheus.CounterVec
}

// NewPrometheusRecorder registers the agent metrics on reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_llm_requests_total",
				Help: "Total number of agent send calls by agent, model, status and error type",
			},
			[]string{"agent", "model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_llm_tokens_total",
				Help: "Total number of tokens used by successful send calls",
			},
			[]string{"agent", "model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_llm_request_duration_seconds",
				Help:    "Duration of send calls in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent", "model"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_llm_fallbacks_total",
				Help: "Primary model failures recovered by the fallback model",
			},
			[]string{"agent", "from", "to"},
		),
		failedCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_llm_failed_cycles_total",
				Help: "Retry cycles in which both primary and fallback failed",
			},
			[]string{"agent"},
		),
	}
}

// ObserveRequest records metrics for a completed send call.
func (p *PrometheusRecorder) ObserveRequest(
	agent, model, status, errorType string,
	duration time.Duration,
	promptTokens, completionTokens int,
) {
	p.requestsTotal.WithLabelValues(agent, model, status, errorType).Inc()

	if status == StatusSuccess {
		p.tokensTotal.WithLabelValues(agent, model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(agent, model, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(agent, model).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncFallback(agent, from, to string) {
	p.fallbacksTotal.WithLabelValues(agent, from, to).Inc()
}

func (p *PrometheusRecorder) IncFailedCycle(agent string) {
	p.failedCyclesTotal.WithLabelValues(agent).Inc()
}
