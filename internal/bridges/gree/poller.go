package gree

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Poll defaults.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultWorkers      = 4
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	Registry  *Registry
	Sink      Sink
	Interval  time.Duration
	Workers   int
	Observers []StateObserver
	Metrics   *Metrics
	Logger    Logger
}

// Poller refreshes every registered device on a fixed interval. Devices are
// polled concurrently up to the worker limit; a failure on one device never
// affects another.
type Poller struct {
	registry  *Registry
	sink      Sink
	interval  time.Duration
	workers   int
	observers []StateObserver
	metrics   *Metrics
	logger    Logger
	now       func() time.Time

	refreshCh chan string
}

// NewPoller creates a poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Poller{
		registry:  cfg.Registry,
		sink:      cfg.Sink,
		interval:  cfg.Interval,
		workers:   cfg.Workers,
		observers: cfg.Observers,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
		refreshCh: make(chan string, 16),
	}
}

// TriggerRefresh asks for an out-of-cycle poll of one device. It never
// blocks; a request is dropped when one is already pending.
func (p *Poller) TriggerRefresh(deviceID string) {
	select {
	case p.refreshCh <- deviceID:
	default:
	}
}

// Run polls immediately, then on every interval, until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.refreshCh:
			if sess, ok := p.registry.Get(id); ok {
				p.pollDevice(ctx, sess)
			}
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs one cycle over every registered device and waits for it to
// finish. Once ctx is done no further devices are started; exchanges that
// are already running finish or time out on their own.
func (p *Poller) PollOnce(ctx context.Context) {
	started := p.now()

	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, sess := range p.registry.List() {
		sess := sess // per-iteration copy (go directive < 1.22)
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.pollDevice(ctx, sess)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	p.metrics.ObservePollCycle(started)
	p.logger.Debug("poll cycle complete",
		"devices", p.registry.Len(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// pollDevice runs bind-if-needed and status for one device, then forwards
// the outcome to the sink and observers.
func (p *Poller) pollDevice(ctx context.Context, sess *Session) {
	dev := sess.Device()
	exchangeCtx := context.WithoutCancel(ctx)

	prev, hadPrev := dev.State()
	started := p.now()
	state, err := sess.Status(exchangeCtx)
	p.metrics.ObserveExchange("status", started, err)
	p.metrics.ObserveAvailability(dev.ID(), err == nil)

	if err != nil {
		p.logger.Warn("status refresh failed",
			"device_id", dev.ID(),
			"address", dev.Address(),
			"error", err,
		)
		if perr := p.sink.PublishAvailability(dev.ID(), false); perr != nil {
			p.logger.Error("failed to publish availability", "device_id", dev.ID(), "error", perr)
		}
		return
	}

	if perr := p.sink.PublishAvailability(dev.ID(), true); perr != nil {
		p.logger.Error("failed to publish availability", "device_id", dev.ID(), "error", perr)
	}
	if perr := p.sink.PublishState(dev.ID(), state); perr != nil {
		p.logger.Error("failed to publish state", "device_id", dev.ID(), "error", perr)
	}
	p.metrics.ObserveState(dev.ID(), state)

	obs := Observation{Device: dev.Snapshot(), State: state, Time: dev.LastSeen()}
	if hadPrev {
		obs.Previous = &prev
	}
	for _, o := range p.observers {
		o.ObserveState(exchangeCtx, obs)
	}
}
