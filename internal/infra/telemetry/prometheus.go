package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"foundry/internal/domain"
)

type PrometheusMetrics struct {
	stageDuration    *prometheus.HistogramVec
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	fixesApplied     *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	cycleFixCount    prometheus.Histogram
	activeCycles     prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foundry_stage_duration_seconds",
				Help:    "Duration of validation pipeline stages in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60},
			},
			[]string{"stage", "outcome"},
		),
		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foundry_pipeline_runs_total",
				Help: "Total number of validation pipeline runs",
			},
			[]string{"result"},
		),
		pipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "foundry_pipeline_duration_seconds",
				Help:    "End-to-end duration of one pipeline run in seconds",
				Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120},
			},
		),
		fixesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foundry_fixes_applied_total",
				Help: "Total number of corrections applied by the fix manager",
			},
			[]string{"kind"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foundry_cycle_duration_seconds",
				Help:    "Duration of full orchestration cycles in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		cycleFixCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "foundry_cycle_fix_cycles",
				Help:    "Number of fix cycles consumed per orchestration cycle",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
			},
		),
		activeCycles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "foundry_active_cycles",
				Help: "Current number of orchestration cycles in flight",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveStage(stage domain.Stage, outcome domain.StageOutcome, duration time.Duration) {
	p.stageDuration.WithLabelValues(string(stage), string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObservePipelineRun(_ string, passed bool, duration time.Duration) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	p.pipelineRuns.WithLabelValues(result).Inc()
	p.pipelineDuration.Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveFix(kind domain.CorrectionKind) {
	p.fixesApplied.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusMetrics) ObserveCycle(status domain.RunStatus, fixCycles int, duration time.Duration) {
	p.cycleDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	p.cycleFixCount.Observe(float64(fixCycles))
}

func (p *PrometheusMetrics) SetActiveCycles(count int) {
	p.activeCycles.Set(float64(count))
}
