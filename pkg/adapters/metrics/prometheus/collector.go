// Package prometheus implements the metrics port on the Prometheus client.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	plansSubmitted *prometheus.CounterVec
	plansCompleted *prometheus.CounterVec
	planSource     *prometheus.CounterVec
	planDuration   *prometheus.HistogramVec

	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	synthesizerFallbacks prometheus.Counter

	llmCalls   *prometheus.CounterVec
	llmTokens  *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec

	dispatcherBusy prometheus.Gauge
	dispatcherIdle prometheus.Gauge
}

// NewCollector creates a Prometheus metrics collector and registers its
// metrics with the default registry.
func NewCollector() *Collector {
	return &Collector{
		plansSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_plans_submitted_total",
				Help: "Total number of plans submitted",
			},
			[]string{"status"},
		),
		plansCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_plans_completed_total",
				Help: "Total number of plans completed",
			},
			[]string{"status"},
		),
		planSource: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_plan_source_total",
				Help: "Plans by origin: parsed, salvaged or fallback",
			},
			[]string{"source"},
		),
		planDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowd_plan_duration_seconds",
				Help:    "Plan execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		stepsExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_steps_executed_total",
				Help: "Total number of steps executed",
			},
			[]string{"category", "status"},
		),
		stepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowd_step_duration_seconds",
				Help:    "Step execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"category"},
		),
		synthesizerFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flowd_synthesizer_fallbacks_total",
				Help: "Total number of times aggregation fell back to local formatting",
			},
		),
		llmCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_llm_calls_total",
				Help: "Total number of LLM API calls",
			},
			[]string{"model"},
		),
		llmTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowd_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowd_llm_latency_seconds",
				Help:    "LLM API call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"model"},
		),
		dispatcherBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowd_dispatcher_slots_busy",
				Help: "Number of busy dispatcher slots",
			},
		),
		dispatcherIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowd_dispatcher_slots_idle",
				Help: "Number of idle dispatcher slots",
			},
		),
	}
}

// RecordPlanSubmitted records a plan submission.
func (c *Collector) RecordPlanSubmitted(status string) {
	c.plansSubmitted.WithLabelValues(status).Inc()
}

// RecordPlanCompleted records a finished plan and its duration.
func (c *Collector) RecordPlanCompleted(status string, duration time.Duration) {
	c.plansCompleted.WithLabelValues(status).Inc()
	c.planDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPlanSource records how a plan was obtained.
func (c *Collector) RecordPlanSource(source string) {
	c.planSource.WithLabelValues(source).Inc()
}

// RecordStepExecuted records a settled step.
func (c *Collector) RecordStepExecuted(category, status string, duration time.Duration) {
	c.stepsExecuted.WithLabelValues(category, status).Inc()
	c.stepDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordSynthesizerFallback records an aggregation that used the local
// formatter instead of the synthesizer.
func (c *Collector) RecordSynthesizerFallback() {
	c.synthesizerFallbacks.Inc()
}

// RecordLLMCall records one LLM API call with its token usage and latency.
func (c *Collector) RecordLLMCall(model string, inputTokens, outputTokens int64, duration time.Duration) {
	c.llmCalls.WithLabelValues(model).Inc()
	c.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	c.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	c.llmLatency.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordDispatcherSlots records dispatcher slot occupancy.
func (c *Collector) RecordDispatcherSlots(busy, idle int) {
	c.dispatcherBusy.Set(float64(busy))
	c.dispatcherIdle.Set(float64(idle))
}
