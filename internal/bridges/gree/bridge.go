package gree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Bridge wires discovery, sessions, the poller and the command dispatcher
// to an MQTT sink. It handles:
//   - Building the device registry from static config and discovery
//   - Announcing devices and publishing their state to MQTT
//   - Receiving commands from MQTT and sending them to devices
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        Config
	mqtt       MQTTClient
	transport  Transport
	registry   *Registry
	sink       *MQTTSink
	poller     *Poller
	dispatcher *Dispatcher
	health     *HealthReporter
	metrics    *Metrics
	logger     Logger

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctxCancel context.CancelFunc
	startedMu sync.Mutex
	started   bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config holds runtime settings and static devices.
	Config Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Transport is optional; defaults to UDP.
	Transport Transport

	// Observers receive every decoded state (telemetry, history).
	Observers []StateObserver

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config.withDefaults()

	transport := opts.Transport
	if transport == nil {
		transport = NewUDPTransport()
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &Bridge{
		cfg:       cfg,
		mqtt:      opts.MQTTClient,
		transport: transport,
		registry:  NewRegistry(),
		metrics:   opts.Metrics,
		logger:    logger,
	}

	b.sink = NewMQTTSink(opts.MQTTClient, cfg.DiscoveryPrefix, cfg.QoS, logger)
	b.poller = NewPoller(PollerConfig{
		Registry:  b.registry,
		Sink:      b.sink,
		Interval:  cfg.PollInterval,
		Workers:   cfg.Workers,
		Observers: opts.Observers,
		Metrics:   opts.Metrics,
		Logger:    logger,
	})
	b.dispatcher = NewDispatcher(DispatcherConfig{
		Registry:  b.registry,
		QueueSize: cfg.CommandQueue,
		Metrics:   opts.Metrics,
		Logger:    logger,
		OnApplied: b.poller.TriggerRefresh,
	})
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  cfg.BridgeID,
		Version:   cfg.Version,
		Interval:  cfg.HealthInterval,
		Publisher: opts.MQTTClient,
		Registry:  b.registry,
		Logger:    logger,
	})

	return b, nil
}

// Registry returns the device registry.
func (b *Bridge) Registry() *Registry { return b.registry }

// Health returns the current health message.
func (b *Bridge) Health() HealthMessage { return b.health.Current() }

// Devices returns a snapshot of every managed device.
func (b *Bridge) Devices() []Snapshot { return b.registry.Snapshots() }

// Device returns a snapshot of one device.
func (b *Bridge) Device(id string) (Snapshot, bool) { return b.registry.Snapshot(id) }

// Start builds the registry and begins polling and command handling. It
// returns ErrNoDevices when neither config nor discovery yields a device.
func (b *Bridge) Start(ctx context.Context) error {
	b.startedMu.Lock()
	defer b.startedMu.Unlock()
	if b.started {
		return fmt.Errorf("bridge already started")
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	b.setupDevices(ctx)
	if b.registry.Len() == 0 {
		return ErrNoDevices
	}
	b.metrics.SetDeviceCount(b.registry.Len())

	for _, snap := range b.registry.Snapshots() {
		if err := b.sink.Announce(snap); err != nil {
			b.logger.Error("failed to publish discovery config", "device_id", snap.ID, "error", err)
		}
	}

	if err := b.sink.SubscribeCommands(b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", b.sink.Topics().CommandSubscription())

	runCtx, cancel := context.WithCancel(ctx)
	b.ctxCancel = cancel

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.dispatcher.Run(runCtx)
	}()
	go func() {
		defer b.wg.Done()
		b.poller.Run(runCtx)
	}()
	b.health.Start(runCtx)
	b.started = true

	b.logger.Info("bridge started",
		"bridge_id", b.cfg.BridgeID,
		"devices", b.registry.Len(),
		"poll_interval", b.cfg.PollInterval.String(),
	)
	return nil
}

// Stop gracefully shuts down the bridge. In-flight exchanges finish or
// time out; every device is then reported offline.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.ctxCancel != nil {
			b.ctxCancel()
		}
		b.wg.Wait()
		b.health.Stop()

		for _, sess := range b.registry.List() {
			//nolint:errcheck // best-effort during shutdown
			b.sink.PublishAvailability(sess.Device().ID(), false)
		}
		b.logger.Info("bridge stopped")
	})
}

// SubmitCommand queues a command for a device.
func (b *Bridge) SubmitCommand(deviceID string, cmd Command) error {
	return b.dispatcher.Submit(CommandEvent{DeviceID: deviceID, Command: cmd, Received: time.Now()})
}

// handleCommand receives decoded command messages from the sink.
func (b *Bridge) handleCommand(ev CommandEvent) {
	if err := b.dispatcher.Submit(ev); err != nil {
		if errors.Is(err, ErrUnknownDevice) {
			b.logger.Debug("command for unknown device", "device_id", ev.DeviceID)
			return
		}
		b.logger.Warn("command dropped", "device_id", ev.DeviceID, "error", err)
		return
	}
	b.logger.Debug("command queued", "device_id", ev.DeviceID)
}

// setupDevices registers static devices, then merges discovery results.
func (b *Bridge) setupDevices(ctx context.Context) {
	for _, opts := range b.cfg.Devices {
		dev := NewDevice(opts)
		if !b.registry.Add(b.newSession(dev)) {
			b.logger.Warn("duplicate device in config", "device_id", dev.ID(), "address", dev.Address())
			continue
		}
		b.logger.Info("device configured", "device_id", dev.ID(), "name", dev.Name(), "address", dev.Address())
	}

	if !b.cfg.Discovery.Enabled {
		return
	}

	found, err := b.Discover(ctx)
	if err != nil {
		b.logger.Warn("discovery failed", "error", err)
	}
	for _, dev := range DedupeByAddress(found) {
		if known, ok := b.registry.GetByAddress(dev.Address()); ok {
			b.logger.Debug("discovered device already configured",
				"device_id", known.Device().ID(),
				"address", dev.Address(),
			)
			continue
		}
		if !b.registry.Add(b.newSession(dev)) {
			b.logger.Debug("discovered device already known", "device_id", dev.ID(), "address", dev.Address())
		}
	}
}

// Discover runs one discovery with the bridge's settings.
func (b *Bridge) Discover(ctx context.Context) ([]*Device, error) {
	return NewDiscovery(DiscoveryConfig{
		Transport:        b.transport,
		BroadcastAddress: b.cfg.Discovery.BroadcastAddress,
		Port:             b.cfg.Discovery.Port,
		Timeout:          b.cfg.Discovery.Timeout,
		Logger:           b.logger,
	}).Discover(ctx)
}

func (b *Bridge) newSession(dev *Device) *Session {
	return NewSession(dev, SessionConfig{
		Transport:       b.transport,
		BindTimeout:     b.cfg.BindTimeout,
		ExchangeTimeout: b.cfg.ExchangeTimeout,
		Logger:          b.logger,
	})
}
