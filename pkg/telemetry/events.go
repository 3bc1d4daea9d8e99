package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the storm system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// TxnID is the associated transaction ID, if applicable.
	TxnID string `json:"txn_id,omitempty"`

	// Node is the associated plan node ID, if applicable.
	Node string `json:"node,omitempty"`

	// Package is the associated package name, if applicable.
	Package string `json:"package,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeTxnStarted      = "txn.started"
	EventTypeTxnCommitted    = "txn.committed"
	EventTypeTxnAborted      = "txn.aborted"
	EventTypeBuildStarted    = "build.started"
	EventTypeBuildCompleted  = "build.completed"
	EventTypeBuildFailed     = "build.failed"
	EventTypePackageInstalled = "package.installed"
	EventTypePackageRemoved  = "package.removed"
	EventTypePolicyViolation = "policy.violation"
	EventTypeRepoSynced      = "repo.synced"
	EventTypeError           = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishTxnStarted publishes a transaction started event.
func (ep *EventPublisher) PublishTxnStarted(txnID string, nodeCount int) error {
	return ep.Publish(Event{
		Type:    EventTypeTxnStarted,
		Source:  "coordinator",
		TxnID:   txnID,
		Message: fmt.Sprintf("Transaction %s started (%d nodes)", txnID, nodeCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"node_count": nodeCount,
		},
	})
}

// PublishTxnCommitted publishes a transaction committed event.
func (ep *EventPublisher) PublishTxnCommitted(txnID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeTxnCommitted,
		Source:  "coordinator",
		TxnID:   txnID,
		Message: fmt.Sprintf("Transaction %s committed", txnID),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishTxnAborted publishes a transaction aborted event.
func (ep *EventPublisher) PublishTxnAborted(txnID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeTxnAborted,
		Source:  "coordinator",
		TxnID:   txnID,
		Message: fmt.Sprintf("Transaction %s aborted: %s", txnID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishBuildStarted publishes a build started event.
func (ep *EventPublisher) PublishBuildStarted(txnID, node, pkg string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildStarted,
		Source:  "sandbox",
		TxnID:   txnID,
		Node:    node,
		Package: pkg,
		Message: fmt.Sprintf("Build started for %s", node),
		Level:   EventLevelInfo,
	})
}

// PublishBuildCompleted publishes a build completed event.
func (ep *EventPublisher) PublishBuildCompleted(txnID, node, pkg string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildCompleted,
		Source:  "sandbox",
		TxnID:   txnID,
		Node:    node,
		Package: pkg,
		Message: fmt.Sprintf("Build completed for %s", node),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishBuildFailed publishes a build failed event.
func (ep *EventPublisher) PublishBuildFailed(txnID, node, pkg, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeBuildFailed,
		Source:  "sandbox",
		TxnID:   txnID,
		Node:    node,
		Package: pkg,
		Message: fmt.Sprintf("Build failed for %s: %s", node, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPackageInstalled publishes a package installed event.
func (ep *EventPublisher) PublishPackageInstalled(txnID, pkg, version string) error {
	return ep.Publish(Event{
		Type:    EventTypePackageInstalled,
		Source:  "pkgdb",
		TxnID:   txnID,
		Package: pkg,
		Message: fmt.Sprintf("Installed %s-%s", pkg, version),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"version": version,
		},
	})
}

// PublishPackageRemoved publishes a package removed event.
func (ep *EventPublisher) PublishPackageRemoved(txnID, pkg, version string) error {
	return ep.Publish(Event{
		Type:    EventTypePackageRemoved,
		Source:  "pkgdb",
		TxnID:   txnID,
		Package: pkg,
		Message: fmt.Sprintf("Removed %s-%s", pkg, version),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"version": version,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(pkg, policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		Package: pkg,
		Message: fmt.Sprintf("Policy violation on package %s: %s - %s", pkg, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// PublishRepoSynced publishes a repository synced event.
func (ep *EventPublisher) PublishRepoSynced(repo string, recipeCount int) error {
	return ep.Publish(Event{
		Type:    EventTypeRepoSynced,
		Source:  "repo",
		Message: fmt.Sprintf("Repository %s synced (%d recipes)", repo, recipeCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"repo":         repo,
			"recipe_count": recipeCount,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByTxnID creates a filter that only allows events for a specific transaction.
func FilterByTxnID(txnID string) EventFilter {
	return func(event Event) bool {
		return event.TxnID == txnID
	}
}

// FilterByPackage creates a filter that only allows events for a specific package.
func FilterByPackage(pkg string) EventFilter {
	return func(event Event) bool {
		return event.Package == pkg
	}
}
