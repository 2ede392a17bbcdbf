// Package metrics provides Prometheus instrumentation for gateflow components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for gateflow components.
type Registry struct {
	// Gateway Operation Metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	PermissionDenied *prometheus.CounterVec
	ActiveAgents     prometheus.Gauge
	StartTime        prometheus.Gauge

	// Bus Metrics
	SamplesTotal *prometheus.CounterVec

	// Subscription Metrics
	SubscriptionsActive *prometheus.GaugeVec
	SubscriptionsOpened *prometheus.CounterVec

	// Rate Limiting Metrics
	RateLimitExceeded *prometheus.CounterVec
	RateLimitRequests *prometheus.CounterVec
	RateLimitAllowed  *prometheus.CounterVec
	RateLimitDenied   *prometheus.CounterVec
	RateLimitTokens   *prometheus.GaugeVec

	// Worker Pool Metrics
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolActive *prometheus.GaugeVec
	WorkerPoolQueued *prometheus.GaugeVec
	TasksTotal       *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
}

// DefaultRegistry is the default metrics registry used by gateflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		// Gateway Operation Metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of gateway requests",
			},
			[]string{"operation", "agent", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateflow",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Time spent handling gateway requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total number of gateway errors",
			},
			[]string{"operation", "error_type"},
		),

		PermissionDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "gateway",
				Name:      "permission_denied_total",
				Help:      "Total number of permission denials",
			},
			[]string{"agent", "topic", "operation"},
		),

		ActiveAgents: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "gateway",
				Name:      "active_agents",
				Help:      "Number of agents with open sessions",
			},
		),

		StartTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "gateway",
				Name:      "start_time_seconds",
				Help:      "Gateway start time as unix timestamp",
			},
		),

		// Bus Metrics
		SamplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "bus",
				Name:      "samples_total",
				Help:      "Total number of samples read from or written to the bus",
			},
			[]string{"topic", "direction"},
		),

		// Subscription Metrics
		SubscriptionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "subscription",
				Name:      "active",
				Help:      "Number of active subscriptions",
			},
			[]string{"topic"},
		),

		SubscriptionsOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "subscription",
				Name:      "opened_total",
				Help:      "Total number of subscriptions created",
			},
			[]string{"topic", "agent"},
		),

		// Rate Limiting Metrics
		RateLimitExceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "ratelimit",
				Name:      "exceeded_total",
				Help:      "Total number of rate limit rejections",
			},
			[]string{"agent", "scope"},
		),

		RateLimitRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "ratelimit",
				Name:      "requests_total",
				Help:      "Total number of rate limit requests",
			},
			[]string{"limiter_type", "limiter_name"},
		),

		RateLimitAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "ratelimit",
				Name:      "allowed_total",
				Help:      "Total number of allowed requests",
			},
			[]string{"limiter_type", "limiter_name"},
		),

		RateLimitDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "ratelimit",
				Name:      "denied_total",
				Help:      "Total number of denied requests",
			},
			[]string{"limiter_type", "limiter_name"},
		),

		RateLimitTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "ratelimit",
				Name:      "tokens_available",
				Help:      "Number of tokens currently available",
			},
			[]string{"limiter_type", "limiter_name"},
		),

		// Worker Pool Metrics
		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "workerpool",
				Name:      "size",
				Help:      "Number of workers in the pool",
			},
			[]string{"pool"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "workerpool",
				Name:      "active_workers",
				Help:      "Number of workers currently executing tasks",
			},
			[]string{"pool"},
		),

		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateflow",
				Subsystem: "workerpool",
				Name:      "queue_depth",
				Help:      "Number of tasks waiting for a worker",
			},
			[]string{"pool"},
		),

		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateflow",
				Subsystem: "workerpool",
				Name:      "tasks_total",
				Help:      "Total number of tasks by outcome",
			},
			[]string{"pool", "outcome"},
		),

		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateflow",
				Subsystem: "workerpool",
				Name:      "task_duration_seconds",
				Help:      "Time spent executing tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool"},
		),
	}
}

// SetStartTime records the gateway start time gauge.
func (r *Registry) SetStartTime(t time.Time) {
	r.StartTime.Set(float64(t.Unix()))
}
