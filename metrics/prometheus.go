// Package metrics exports launch metrics to Prometheus.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/reglet-dev/reglet-launcher/application/launch"
	"github.com/reglet-dev/reglet-launcher/domain/entities"
	"github.com/reglet-dev/reglet-launcher/domain/errors"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "reglet_launcher"

// LaunchMetricsCollector records launch task transitions. It implements
// launch.Observer.
type LaunchMetricsCollector struct {
	// State transition metrics
	stateTransitions *prometheus.CounterVec

	// Outcome metrics
	failures *prometheus.CounterVec
	exits    *prometheus.CounterVec
	running  prometheus.Gauge

	// Performance metrics
	startupDuration *prometheus.HistogramVec

	registry *prometheus.Registry

	mu        sync.Mutex
	submitted map[string]time.Time
}

// NewLaunchMetricsCollector creates a collector with its own registry.
func NewLaunchMetricsCollector(namespace string) *LaunchMetricsCollector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &LaunchMetricsCollector{
		registry:  prometheus.NewRegistry(),
		submitted: make(map[string]time.Time),
	}

	c.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_state_transitions_total",
			Help:      "Total number of launch task state transitions",
		},
		[]string{"module", "state"},
	)

	c.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_failures_total",
			Help:      "Total number of launches that failed before the module ran, by error kind",
		},
		[]string{"module", "kind"},
	)

	c.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_exits_total",
			Help:      "Total number of running modules whose entry point returned",
		},
		[]string{"module", "status"},
	)

	c.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modules_running",
			Help:      "Number of modules currently running",
		},
	)

	c.startupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Time from submission until a module runs or its launch fails",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.stateTransitions,
		c.failures,
		c.exits,
		c.running,
		c.startupDuration,
	)

	return c
}

// OnTransition records one task transition.
func (c *LaunchMetricsCollector) OnTransition(d entities.LaunchDescriptor, state entities.TaskState, err error) {
	c.stateTransitions.WithLabelValues(d.Module, string(state)).Inc()

	switch state {
	case entities.TaskSubmitted:
		c.mu.Lock()
		c.submitted[key(d)] = time.Now()
		c.mu.Unlock()
	case entities.TaskRunning:
		c.running.Inc()
		c.observeStartup(d, "running")
	case entities.TaskFailed:
		c.failures.WithLabelValues(d.Module, string(errors.KindOf(err))).Inc()
		c.observeStartup(d, "failed")
	case entities.TaskExited:
		c.running.Dec()
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.exits.WithLabelValues(d.Module, status).Inc()
	}
}

func (c *LaunchMetricsCollector) observeStartup(d entities.LaunchDescriptor, result string) {
	c.mu.Lock()
	start, ok := c.submitted[key(d)]
	delete(c.submitted, key(d))
	c.mu.Unlock()
	if ok {
		c.startupDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

func key(d entities.LaunchDescriptor) string {
	return d.ArchivePath + "@" + strconv.Itoa(d.Port)
}

// Registry returns the Prometheus registry for HTTP handler setup.
func (c *LaunchMetricsCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Compile-time interface compliance check
var _ launch.Observer = (*LaunchMetricsCollector)(nil)
