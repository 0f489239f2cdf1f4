package metrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conductorsdk/worker-go/pkg/events"
)

// quantileObjectives are the summary quantiles exposed for every timing
// metric, with their allowed absolute error.
var quantileObjectives = map[float64]float64{
	0.5:  0.05,
	0.75: 0.025,
	0.9:  0.01,
	0.95: 0.005,
	0.99: 0.001,
}

// Collector is the built-in event listener that maintains Prometheus-shaped
// counters and sliding-quantile summaries for the worker runtime. All
// runners in a process share one collector; the registry carries no
// process-id labels.
type Collector struct {
	registry *prometheus.Registry

	pollTotal    *prometheus.CounterVec
	pollTime     *prometheus.SummaryVec
	executeTime  *prometheus.SummaryVec
	executeError *prometheus.CounterVec
	updateTime   *prometheus.SummaryVec
	updateError  *prometheus.CounterVec
	resultSize   *prometheus.SummaryVec
	pausedTotal  *prometheus.CounterVec
	restartTotal *prometheus.CounterVec
	httpRequest  *prometheus.SummaryVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		pollTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_poll_total",
				Help: "Total number of batch polls issued",
			},
			[]string{"taskType"},
		),
		pollTime: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "task_poll_time_seconds",
				Help:       "Batch poll duration in seconds",
				Objectives: quantileObjectives,
			},
			[]string{"taskType", "status"},
		),
		executeTime: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "task_execute_time_seconds",
				Help:       "Task execution duration from submission to completion in seconds",
				Objectives: quantileObjectives,
			},
			[]string{"taskType", "status"},
		),
		executeError: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_execute_error_total",
				Help: "Total number of task execution failures",
			},
			[]string{"taskType", "exception"},
		),
		updateTime: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "task_update_time_seconds",
				Help:       "Task result update duration in seconds",
				Objectives: quantileObjectives,
			},
			[]string{"taskType", "status"},
		),
		updateError: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_update_error_total",
				Help: "Total number of task result update failures",
			},
			[]string{"taskType", "exception"},
		),
		resultSize: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "task_result_size",
				Help:       "Serialized task output size in bytes",
				Objectives: quantileObjectives,
			},
			[]string{"taskType"},
		),
		pausedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_paused_total",
				Help: "Total number of poll cycles skipped because the worker is paused",
			},
			[]string{"taskType"},
		),
		restartTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_restart_total",
				Help: "Total number of runner restarts by the supervisor",
			},
			[]string{"taskType"},
		),
		httpRequest: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "http_api_client_request",
				Help:       "Orchestrator API request duration in seconds",
				Objectives: quantileObjectives,
			},
			[]string{"method", "uri", "status"},
		),
	}

	registry.MustRegister(
		c.pollTotal,
		c.pollTime,
		c.executeTime,
		c.executeError,
		c.updateTime,
		c.updateError,
		c.resultSize,
		c.pausedTotal,
		c.restartTotal,
		c.httpRequest,
	)

	return c
}

// OnEvent implements events.Listener.
func (c *Collector) OnEvent(e events.Event) {
	switch ev := e.(type) {
	case events.PollStarted:
		c.pollTotal.WithLabelValues(ev.TaskType).Inc()
	case events.PollCompleted:
		c.pollTime.WithLabelValues(ev.TaskType, "success").Observe(ev.Duration.Seconds())
	case events.PollFailure:
		c.pollTime.WithLabelValues(ev.TaskType, "failure").Observe(ev.Duration.Seconds())
	case events.TaskExecutionCompleted:
		c.executeTime.WithLabelValues(ev.TaskType, "completed").Observe(ev.Duration.Seconds())
		c.resultSize.WithLabelValues(ev.TaskType).Observe(float64(ev.OutputSizeBytes))
	case events.TaskExecutionFailure:
		c.executeTime.WithLabelValues(ev.TaskType, "failed").Observe(ev.Duration.Seconds())
		c.executeError.WithLabelValues(ev.TaskType, errorLabel(ev.Cause)).Inc()
	case events.TaskUpdateCompleted:
		c.updateTime.WithLabelValues(ev.TaskType, strings.ToLower(ev.Status)).Observe(ev.Duration.Seconds())
	case events.TaskUpdateFailure:
		c.updateTime.WithLabelValues(ev.TaskType, "failure").Observe(ev.Duration.Seconds())
		c.updateError.WithLabelValues(ev.TaskType, errorLabel(ev.Cause)).Inc()
	case events.TaskPaused:
		c.pausedTotal.WithLabelValues(ev.TaskType).Inc()
	case events.WorkerRestarted:
		c.restartTotal.WithLabelValues(ev.TaskType).Inc()
	case events.HTTPRequest:
		c.httpRequest.WithLabelValues(ev.Method, ev.URI, ev.Status).Observe(ev.Duration.Seconds())
	}
}

// Registry returns the collector's registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in Prometheus text
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// errorLabel derives the exception label from an error's concrete type.
func errorLabel(err error) string {
	if err == nil {
		return "none"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
