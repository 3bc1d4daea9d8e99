// Package telemetry provides observability instrumentation for storm.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging storm operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "storm"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("coordinator")
//	logger = logger.WithTxnID("txn-123").WithPackage("zlib")
//	logger.Info("Applying build plan")
//	logger.WithError(err).Error("Build failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into request flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("package.name", name),
//	    attribute.String("node.action", "install"),
//	)
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track system behavior and performance:
//
//	tel.Metrics.RecordResolution("success", duration)
//	tel.Metrics.RecordBuild("failure", duration)
//	tel.Metrics.RecordTransaction("committed", duration)
//	tel.Metrics.RecordError("unsatisfiable")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishTxnStarted(txnID, len(plan.Nodes))
//	tel.Events.PublishBuildCompleted(txnID, nodeID, pkg, duration)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByTxnID, FilterByPackage
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Transaction context
//	ctx = telemetry.WithTxnContext(ctx, txnID, len(plan.Nodes))
//	defer telemetry.EndTxnContext(ctx, txnID, status, err)
//
//	// Plan node context
//	ctx = telemetry.WithNodeContext(ctx, txnID, nodeID, pkg, action)
//	defer telemetry.EndNodeContext(ctx, txnID, nodeID, pkg, status, err)
//
//	// Repository operation
//	err := telemetry.RecordRepoOperation(ctx, "core", "sync", func() error {
//	    return repo.Sync(ctx)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Common Metrics
//
// Key metrics exposed:
//
//	storm_resolutions_total{status}
//	storm_resolution_duration_seconds{status}
//	storm_builds_total{status}
//	storm_build_duration_seconds{status}
//	storm_transactions_total{status}
//	storm_transaction_duration_seconds{status}
//	storm_repo_syncs_total{repo,status}
//	storm_errors_by_kind_total{kind}
//	storm_installed_packages
//	storm_active_sandboxes
//	storm_queued_plan_nodes
package telemetry
