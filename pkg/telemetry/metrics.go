package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for storm.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	// Build metrics
	buildsTotal   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec

	// Transaction metrics
	transactionsTotal   *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec

	// Repository metrics
	repoSyncs *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	installedPackages prometheus.Gauge
	activeSandboxes   prometheus.Gauge
	queuedNodes       prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of dependency resolutions",
			},
			[]string{"status"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of dependency resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of sandboxed builds",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of sandboxed builds in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of package database transactions",
			},
			[]string{"status"},
		),
		transactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of plan application in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		repoSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repo_syncs_total",
				Help:      "Total number of repository synchronizations",
			},
			[]string{"repo", "status"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),

		installedPackages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "installed_packages",
				Help:      "Current number of installed packages",
			},
		),
		activeSandboxes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sandboxes",
				Help:      "Current number of live build sandboxes",
			},
		),
		queuedNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_plan_nodes",
				Help:      "Current number of plan nodes waiting for a worker",
			},
		),
	}

	registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
		m.buildsTotal,
		m.buildDuration,
		m.transactionsTotal,
		m.transactionDuration,
		m.repoSyncs,
		m.errorsByKind,
		m.installedPackages,
		m.activeSandboxes,
		m.queuedNodes,
	)

	return m, nil
}

// RecordResolution records one resolver invocation.
func (m *Metrics) RecordResolution(status string, duration time.Duration) {
	if m.resolutionsTotal == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(status).Inc()
	m.resolutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordBuild records one sandboxed build.
func (m *Metrics) RecordBuild(status string, duration time.Duration) {
	if m.buildsTotal == nil {
		return
	}
	m.buildsTotal.WithLabelValues(status).Inc()
	m.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTransaction records one plan application.
func (m *Metrics) RecordTransaction(status string, duration time.Duration) {
	if m.transactionsTotal == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(status).Inc()
	m.transactionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRepoSync records one repository synchronization.
func (m *Metrics) RecordRepoSync(repo, status string) {
	if m.repoSyncs == nil {
		return
	}
	m.repoSyncs.WithLabelValues(repo, status).Inc()
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// SetInstalledPackages sets the current installed package count.
func (m *Metrics) SetInstalledPackages(count float64) {
	if m.installedPackages == nil {
		return
	}
	m.installedPackages.Set(count)
}

// SandboxStarted marks one sandbox as live.
func (m *Metrics) SandboxStarted() {
	if m.activeSandboxes == nil {
		return
	}
	m.activeSandboxes.Inc()
}

// SandboxFinished marks one sandbox as torn down.
func (m *Metrics) SandboxFinished() {
	if m.activeSandboxes == nil {
		return
	}
	m.activeSandboxes.Dec()
}

// SetQueuedNodes sets the current number of nodes waiting for a worker.
func (m *Metrics) SetQueuedNodes(count float64) {
	if m.queuedNodes == nil {
		return
	}
	m.queuedNodes.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
