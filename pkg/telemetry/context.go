package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger    *Logger
	Tracer    *Tracer
	Metrics   *Metrics
	Events    *EventPublisher
	Config    *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", operation)

	// Add trace context to logger if available
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithTxnContext creates a context enriched with transaction-specific telemetry.
func WithTxnContext(ctx context.Context, txnID string, nodeCount int) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start transaction span
	spanCtx, span := tel.Tracer.StartTxnSpan(ctx, txnID)

	// Create transaction-specific logger
	logger := tel.Logger.WithTxnID(txnID)
	spanCtx = logger.WithContext(spanCtx)

	// Publish transaction started event
	_ = tel.Events.PublishTxnStarted(txnID, nodeCount)

	// Store the span and timer in context for later retrieval
	spanCtx = context.WithValue(spanCtx, txnSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, txnTimerKey{}, NewTimer())

	return spanCtx
}

// txnSpanKey is the context key for transaction spans.
type txnSpanKey struct{}

// txnTimerKey is the context key for transaction timers.
type txnTimerKey struct{}

// EndTxnContext completes the transaction context, recording metrics and events.
func EndTxnContext(ctx context.Context, txnID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the transaction span from context
	if span, ok := ctx.Value(txnSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(txnTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	tel.Metrics.RecordTransaction(status, duration)

	// Publish events
	if err != nil {
		_ = tel.Events.PublishTxnAborted(txnID, err.Error())
	} else {
		_ = tel.Events.PublishTxnCommitted(txnID, duration)
	}
}

// WithNodeContext creates a context enriched with plan-node-specific telemetry.
func WithNodeContext(ctx context.Context, txnID, nodeID, pkg, action string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	// Start node span
	spanCtx, span := tel.Tracer.StartNodeSpan(ctx, nodeID, action)

	// Create node-specific logger
	logger := tel.Logger.
		WithTxnID(txnID).
		WithNode(nodeID).
		WithPackage(pkg)
	spanCtx = logger.WithContext(spanCtx)

	// Publish build started event
	_ = tel.Events.PublishBuildStarted(txnID, nodeID, pkg)

	// Store the span and timer in context
	spanCtx = context.WithValue(spanCtx, nodeSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, nodeTimerKey{}, NewTimer())

	return spanCtx
}

// nodeSpanKey is the context key for plan node spans.
type nodeSpanKey struct{}

// nodeTimerKey is the context key for plan node timers.
type nodeTimerKey struct{}

// EndNodeContext completes the node context, recording metrics and events.
func EndNodeContext(ctx context.Context, txnID, nodeID, pkg, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	// Get the span from context
	if span, ok := ctx.Value(nodeSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	// Get the timer from context
	var duration time.Duration
	if timer, ok := ctx.Value(nodeTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	// Record metrics
	tel.Metrics.RecordBuild(status, duration)

	// Publish events
	if err != nil {
		_ = tel.Events.PublishBuildFailed(txnID, nodeID, pkg, err.Error())
	} else {
		_ = tel.Events.PublishBuildCompleted(txnID, nodeID, pkg, duration)
	}
}

// RecordRepoOperation records a repository operation with metrics and tracing.
func RecordRepoOperation(ctx context.Context, repoName, operation string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	// Start span
	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartRepoSpan(ctx, repoName, operation)
		defer span.End()
	}

	// Execute operation
	err := fn()

	// Record metrics
	if tel != nil {
		if err != nil {
			tel.Metrics.RecordRepoSync(repoName, "failure")
			RecordError(span, err)
		} else {
			tel.Metrics.RecordRepoSync(repoName, "success")
			RecordSuccess(span)
		}
	}

	return err
}
