package gree

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCommandQueue is the default dispatcher queue depth.
const DefaultCommandQueue = 32

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry  *Registry
	QueueSize int
	Metrics   *Metrics
	Logger    Logger

	// OnApplied is called after a command was acknowledged by the device.
	OnApplied func(deviceID string)
}

// Dispatcher owns the inbound command queue. Transport callbacks only
// enqueue; a single loop executes commands in arrival order.
type Dispatcher struct {
	registry  *Registry
	queue     chan CommandEvent
	metrics   *Metrics
	logger    Logger
	onApplied func(deviceID string)
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultCommandQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		queue:     make(chan CommandEvent, cfg.QueueSize),
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		onApplied: cfg.OnApplied,
		now:       time.Now,
	}
}

// Submit enqueues a command without blocking. Commands for unknown devices
// are rejected with ErrUnknownDevice; a full queue returns ErrQueueFull.
func (d *Dispatcher) Submit(ev CommandEvent) error {
	if _, ok := d.registry.Get(ev.DeviceID); !ok {
		d.metrics.CommandDropped()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, ev.DeviceID)
	}
	if ev.Received.IsZero() {
		ev.Received = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrBridgeStopped
	}

	select {
	case d.queue <- ev:
		return nil
	default:
		d.metrics.CommandDropped()
		return ErrQueueFull
	}
}

// Run executes queued commands until ctx is done. Commands still queued at
// shutdown are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	defer func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.execute(ctx, ev)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, ev CommandEvent) {
	sess, ok := d.registry.Get(ev.DeviceID)
	if !ok {
		d.metrics.CommandDropped()
		d.logger.Warn("command for unknown device", "device_id", ev.DeviceID)
		return
	}

	started := d.now()
	in, err := sess.Command(context.WithoutCancel(ctx), ev.Command)
	if in.Len() == 0 {
		d.logger.Debug("command has no applicable fields", "device_id", ev.DeviceID)
		return
	}
	d.metrics.ObserveExchange("command", started, err)
	d.metrics.ObserveAvailability(ev.DeviceID, err == nil)

	if err != nil {
		d.logger.Warn("command failed",
			"device_id", ev.DeviceID,
			"opcodes", in.Opt,
			"error", err,
		)
		return
	}

	d.logger.Info("command applied",
		"device_id", ev.DeviceID,
		"opcodes", in.Opt,
		"values", in.P,
		"latency_ms", time.Since(ev.Received).Milliseconds(),
	)
	if d.onApplied != nil {
		d.onApplied(ev.DeviceID)
	}
}
