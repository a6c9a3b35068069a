package workflow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for workflow runs.
type Metrics struct {
	InstructionsTotal *prometheus.CounterVec
	DebugIterations   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	AgentErrorsTotal  *prometheus.CounterVec
}

// NewMetrics returns the process-wide metrics, registering them with the
// default registry on first use.
//
// Metrics:
//   - agentbench_instructions_total{step,status} - instances finished per status
//   - agentbench_debug_iterations_total{step} - debug attempts that produced an artifact
//   - agentbench_execution_duration_seconds{step} - generated code run time
//   - agentbench_agent_errors_total{step} - capability calls that returned an error
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsWith(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// NewMetricsWith registers a fresh set of metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InstructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentbench_instructions_total",
				Help: "Total number of instructions processed per step, by final status",
			},
			[]string{"step", "status"},
		),
		DebugIterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentbench_debug_iterations_total",
				Help: "Total number of debug iterations per step",
			},
			[]string{"step"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentbench_execution_duration_seconds",
				Help:    "Duration of generated code execution in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"step"},
		),
		AgentErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentbench_agent_errors_total",
				Help: "Total number of capability calls that failed",
			},
			[]string{"step"},
		),
	}
}

// WriteTextfile writes everything g gathers to path in the node exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}

func (m *Metrics) instructionDone(step, status string) {
	if m == nil {
		return
	}
	m.InstructionsTotal.WithLabelValues(step, status).Inc()
}

func (m *Metrics) debugIteration(step string) {
	if m == nil {
		return
	}
	m.DebugIterations.WithLabelValues(step).Inc()
}

func (m *Metrics) executed(step string, seconds float64) {
	if m == nil {
		return
	}
	m.ExecutionDuration.WithLabelValues(step).Observe(seconds)
}

func (m *Metrics) agentError(step string) {
	if m == nil {
		return
	}
	m.AgentErrorsTotal.WithLabelValues(step).Inc()
}
