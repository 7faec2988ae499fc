package monitoring

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kernel's Prometheus metrics. Each instance owns its
// registry so several kernels can live in one binary.
type Metrics struct {
	registry *prometheus.Registry

	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// Object metrics
	ObjectsCreated   *prometheus.CounterVec
	ChannelMessages  *prometheus.CounterVec
	PolicyViolations *prometheus.CounterVec
	ProcessExits     *prometheus.CounterVec

	// Debug server metrics
	HTTPRequests *prometheus.CounterVec

	startTime time.Time

	// Snapshot for the JSON debug endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds running totals for the JSON debug endpoint.
type MetricsSnapshot struct {
	TotalSyscalls  int64   `json:"total_syscalls"`
	FailedSyscalls int64   `json:"failed_syscalls"`
	TotalDuration  float64 `json:"total_duration_seconds"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		SyscallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_syscalls_total",
				Help: "Total number of kernel calls by result status",
			},
			[]string{"syscall", "status"},
		),
		SyscallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fiber_syscall_duration_seconds",
				Help:    "Kernel call duration in seconds",
				Buckets: []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"syscall"},
		),
		ObjectsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_objects_created_total",
				Help: "Kernel objects created through kernel calls",
			},
			[]string{"type"},
		),
		ChannelMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_channel_messages_total",
				Help: "Channel messages written and read",
			},
			[]string{"direction"},
		),
		PolicyViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_policy_violations_total",
				Help: "Job policy conditions that did not allow the operation",
			},
			[]string{"condition", "action"},
		),
		ProcessExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_process_exits_total",
				Help: "Processes that finished, by how they finished",
			},
			[]string{"reason"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_debug_http_requests_total",
				Help: "Requests served by the debug HTTP surface",
			},
			[]string{"method", "path", "status"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fiber_uptime_seconds",
			Help: "Kernel uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterGaugeFunc exposes a value sampled at scrape time. Several kernels
// may share one Metrics: a gauge already registered under the same name and
// labels keeps its first sampler, so per-kernel gauges need distinct labels.
func (m *Metrics) RegisterGaugeFunc(name, help string, labels prometheus.Labels, fn func() float64) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: labels}, fn)
	if err := m.registry.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return fmt.Errorf("failed to register %s: %w", name, err)
	}
	return nil
}

// RecordSyscall records one kernel call.
func (m *Metrics) RecordSyscall(syscall, status string, duration time.Duration) {
	m.SyscallsTotal.WithLabelValues(syscall, status).Inc()
	m.SyscallDuration.WithLabelValues(syscall).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalSyscalls++
	m.snapshot.TotalDuration += duration.Seconds()
	if status != "OK" {
		m.snapshot.FailedSyscalls++
	}
	m.mu.Unlock()
}

// RecordObjectCreated counts a kernel object created by a kernel call.
func (m *Metrics) RecordObjectCreated(objType string) {
	m.ObjectsCreated.WithLabelValues(objType).Inc()
}

// RecordChannelMessage counts a message in the given direction, "write" or
// "read".
func (m *Metrics) RecordChannelMessage(direction string) {
	m.ChannelMessages.WithLabelValues(direction).Inc()
}

// RecordPolicyViolation counts a condition that denied or killed.
func (m *Metrics) RecordPolicyViolation(condition, action string) {
	m.PolicyViolations.WithLabelValues(condition, action).Inc()
}

// RecordProcessExit counts a process that finished.
func (m *Metrics) RecordProcessExit(reason string) {
	m.ProcessExits.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest counts a debug HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string) {
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
}

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
