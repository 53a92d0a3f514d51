package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for the quota and seat domains.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	usageRecords     *prometheus.CounterVec
	seatAssignments  *prometheus.CounterVec
	calloutStages    *prometheus.CounterVec
	schedulerRuns    *prometheus.CounterVec
	schedulerBacklog prometheus.Gauge
}

// New registers and returns the application metrics.
func New() *Metrics {
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotara_http_requests_total",
		Help: "Counts HTTP requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quotara_http_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	usageRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotara_usage_records_total",
		Help: "Counts usage ledger writes by outcome.",
	}, []string{"outcome"})

	seatAssignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotara_seat_assignments_total",
		Help: "Counts seat assignment operations by outcome.",
	}, []string{"operation", "outcome"})

	calloutStages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotara_callout_stage_total",
		Help: "Counts computed notification stages.",
	}, []string{"stage"})

	schedulerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotara_scheduler_runs_total",
		Help: "Counts scheduler task runs by task and status.",
	}, []string{"task", "status"})

	schedulerBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quotara_scheduler_rollup_backlog",
		Help: "Root namespaces pending rollup in the current cycle.",
	})

	prometheus.MustRegister(
		httpRequests,
		httpDuration,
		usageRecords,
		seatAssignments,
		calloutStages,
		schedulerRuns,
		schedulerBacklog,
	)

	return &Metrics{
		httpRequests:     httpRequests,
		httpDuration:     httpDuration,
		usageRecords:     usageRecords,
		seatAssignments:  seatAssignments,
		calloutStages:    calloutStages,
		schedulerRuns:    schedulerRuns,
		schedulerBacklog: schedulerBacklog,
	}
}

func (m *Metrics) RecordUsageWrite(outcome string) {
	if m == nil {
		return
	}
	m.usageRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSeatOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.seatAssignments.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordCalloutStage(stage string) {
	if m == nil {
		return
	}
	m.calloutStages.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordSchedulerRun(task, status string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(task, status).Inc()
}

func (m *Metrics) SetRollupBacklog(n int) {
	if m == nil {
		return
	}
	m.schedulerBacklog.Set(float64(n))
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
