package gree

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the bridge identifier for health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Registry supplies device counts.
	Registry *Registry

	// Logger is optional.
	Logger Logger
}

// HealthReporter periodically publishes bridge health.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	registry  *Registry
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a new health reporter.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		registry:  registry,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx is done or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Current returns the health message that would be published now.
func (h *HealthReporter) Current() HealthMessage {
	status, reason := h.determineStatus()
	return h.buildMessage(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	managed, available := h.counts()
	if managed == 0 {
		return HealthDegraded, "no devices known"
	}
	if available == 0 {
		return HealthDegraded, "no devices reachable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) counts() (managed, available int) {
	for _, s := range h.registry.List() {
		managed++
		if s.Device().Available() {
			available++
		}
	}
	return managed, available
}

func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	managed, available := h.counts()
	return HealthMessage{
		Bridge:           h.bridgeID,
		Timestamp:        time.Now().UTC(),
		Status:           status,
		Version:          h.version,
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
		DevicesManaged:   managed,
		DevicesAvailable: available,
		Reason:           reason,
	}
}

// publishStatus publishes a health status message (QoS 1, retained).
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(), payload, 1, true)
}
