package gree

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// recordingObserver captures observations.
type recordingObserver struct {
	mu  sync.Mutex
	obs []Observation
}

func (r *recordingObserver) ObserveState(_ context.Context, obs Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, obs)
}

func (r *recordingObserver) all() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Observation(nil), r.obs...)
}

func registryWith(t *testing.T, devices ...DeviceOptions) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, opts := range devices {
		sess := NewSession(NewDevice(opts), SessionConfig{
			BindTimeout:     300 * time.Millisecond,
			ExchangeTimeout: 300 * time.Millisecond,
		})
		if !r.Add(sess) {
			t.Fatalf("duplicate device %+v", opts)
		}
	}
	return r
}

func TestPollOnce_FailureIsolation(t *testing.T) {
	good := newSimDevice(t, "aaaaaaaaaaaa")
	bad := newSimDevice(t, "bbbbbbbbbbbb")
	bad.setSilent(true)

	goodOpts := good.options()
	goodOpts.ID = "good"
	badOpts := bad.options()
	badOpts.ID = "bad"

	sink := newRecordingSink()
	observer := &recordingObserver{}
	p := NewPoller(PollerConfig{
		Registry:  registryWith(t, badOpts, goodOpts),
		Sink:      sink,
		Workers:   1,
		Observers: []StateObserver{observer},
		Metrics:   NewMetrics(prometheus.NewRegistry()),
	})

	p.PollOnce(context.Background())

	if got := sink.availabilityFor("good"); len(got) != 1 || !got[0] {
		t.Errorf("good availability = %v, want [true]", got)
	}
	if got := sink.statesFor("good"); len(got) != 1 || got[0].TargetTemperature != 25 {
		t.Errorf("good states = %+v", got)
	}
	if got := sink.availabilityFor("bad"); len(got) != 1 || got[0] {
		t.Errorf("bad availability = %v, want [false]", got)
	}
	if got := sink.statesFor("bad"); len(got) != 0 {
		t.Errorf("bad device must not publish state, got %+v", got)
	}

	obs := observer.all()
	if len(obs) != 1 || obs[0].Device.ID != "good" || obs[0].Previous != nil || !obs[0].Changed() {
		t.Errorf("observations = %+v", obs)
	}
}

func TestPollOnce_PreviousStateAndChange(t *testing.T) {
	sim := newSimDevice(t, "aaaaaaaaaaaa")
	sink := newRecordingSink()
	observer := &recordingObserver{}
	p := NewPoller(PollerConfig{
		Registry:  registryWith(t, sim.options()),
		Sink:      sink,
		Observers: []StateObserver{observer},
	})

	p.PollOnce(context.Background())
	p.PollOnce(context.Background())
	sim.setDat([]int{0, 4, 20, 0, 18, 0, 0, 0, 0, 0, 0, 0, 0})
	p.PollOnce(context.Background())

	obs := observer.all()
	if len(obs) != 3 {
		t.Fatalf("observations = %d, want 3", len(obs))
	}
	if obs[1].Previous == nil || obs[1].Changed() {
		t.Error("second poll with identical state should not be a change")
	}
	if !obs[2].Changed() || obs[2].State.Mode != ModeHeat {
		t.Errorf("third poll should be a change to heat, got %+v", obs[2].State)
	}
}

func TestPollOnce_SinkErrorsAreContained(t *testing.T) {
	sim := newSimDevice(t, "aaaaaaaaaaaa")
	sink := newRecordingSink()
	sink.failWith = errors.New("broker down")

	p := NewPoller(PollerConfig{Registry: registryWith(t, sim.options()), Sink: sink})
	p.PollOnce(context.Background())

	sess := p.registry.List()[0]
	if !sess.Device().Available() {
		t.Error("device should still be available when the sink fails")
	}
}

func TestPollOnce_CancelledSchedulesNothing(t *testing.T) {
	sim := newSimDevice(t, "aaaaaaaaaaaa")
	sink := newRecordingSink()
	p := NewPoller(PollerConfig{Registry: registryWith(t, sim.options()), Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.PollOnce(ctx)

	if got := sink.availabilityFor(NewDevice(sim.options()).ID()); len(got) != 0 {
		t.Errorf("cancelled cycle polled devices: %v", got)
	}
}

func TestPollerRun_StopsOnCancel(t *testing.T) {
	sim := newSimDevice(t, "aaaaaaaaaaaa")
	sink := newRecordingSink()
	p := NewPoller(PollerConfig{
		Registry: registryWith(t, sim.options()),
		Sink:     sink,
		Interval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	id := NewDevice(sim.options()).ID()
	waitFor(t, 2*time.Second, func() bool { return len(sink.availabilityFor(id)) >= 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestPollerTriggerRefresh(t *testing.T) {
	sim := newSimDevice(t, "aaaaaaaaaaaa")
	opts := sim.options()
	opts.ID = "lounge"
	sink := newRecordingSink()
	p := NewPoller(PollerConfig{
		Registry: registryWith(t, opts),
		Sink:     sink,
		Interval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return len(sink.availabilityFor("lounge")) == 1 })
	p.TriggerRefresh("lounge")
	p.TriggerRefresh("unknown")
	waitFor(t, 2*time.Second, func() bool { return len(sink.availabilityFor("lounge")) == 2 })
}
