package gree

import (
	"context"
	"net"
	"testing"
	"time"
)

func newLoopbackDiscovery(port int, timeout time.Duration) *Discovery {
	return NewDiscovery(DiscoveryConfig{
		BroadcastAddress: "127.0.0.1",
		Port:             port,
		Timeout:          timeout,
	})
}

func TestDiscover_FindsDevice(t *testing.T) {
	sim := newSimDevice(t, "f4911e7aca59")

	found, err := newLoopbackDiscovery(sim.port(), 300*time.Millisecond).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Discover() found %d devices, want 1", len(found))
	}

	dev := found[0]
	if dev.Host() != "127.0.0.1" || dev.Port() != sim.port() {
		t.Errorf("address = %s", dev.Address())
	}
	if dev.MAC() != "f4911e7aca59" || dev.Name() != sim.name {
		t.Errorf("mac/name = %q/%q", dev.MAC(), dev.Name())
	}
	if dev.Model() != "sim" || dev.Version() != "V1.0" || dev.Brand() != "gree" {
		t.Errorf("model/version/brand = %q/%q/%q", dev.Model(), dev.Version(), dev.Brand())
	}
	if dev.ID() != "127_0_0_1" {
		t.Errorf("ID = %q", dev.ID())
	}
	if dev.BindState() != Unbound {
		t.Error("discovered device should start unbound")
	}
}

func TestDiscover_ZeroRepliesIsEmptyNotError(t *testing.T) {
	sim := newSimDevice(t, "f4911e7aca59")
	sim.setSilent(true)

	start := time.Now()
	found, err := newLoopbackDiscovery(sim.port(), 200*time.Millisecond).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if found == nil || len(found) != 0 {
		t.Errorf("Discover() = %v, want empty set", found)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Discover() blocked for %v", elapsed)
	}
}

func TestDiscover_ContextDeadlineBoundsWindow(t *testing.T) {
	sim := newSimDevice(t, "f4911e7aca59")
	sim.setSilent(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := newLoopbackDiscovery(sim.port(), 10*time.Second).Discover(ctx); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Discover() ignored the context deadline")
	}
}

// replayTransport feeds canned datagrams to Broadcast.
type replayTransport struct {
	countingTransport
	replies []replayDatagram
}

type replayDatagram struct {
	from *net.UDPAddr
	data string
}

func (r *replayTransport) Broadcast(_ context.Context, _ string, _ []byte, _ time.Duration, onReply func(*net.UDPAddr, []byte)) error {
	for _, d := range r.replies {
		onReply(d.from, []byte(d.data))
	}
	return nil
}

func TestDiscover_ReplyFormats(t *testing.T) {
	a := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 7000}
	b := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 6), Port: 7000}
	c := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 7000}

	transport := &replayTransport{replies: []replayDatagram{
		{a, `{"t":"dev","cid":"aa","pack":{"mac":"aa","name":"Lounge","brand":"gree","model":"Bora","ver":"V2"}}`},
		{b, `{"t":"dev","cid":"bb","pack":{"mac":"bb"}}`},
		{c, `garbage`},
		{c, `{"t":"res"}`},
		{a, `{"t":"dev","cid":"aa","pack":{"mac":"aa","name":"Lounge"}}`},
	}}

	found, err := NewDiscovery(DiscoveryConfig{Transport: transport}).Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 3 {
		t.Fatalf("found %d replies, want 3 (duplicates are kept)", len(found))
	}
	if found[0].Name() != "Lounge" || found[0].Model() != "Bora" {
		t.Errorf("plaintext pack: %+v", found[0].Snapshot())
	}
	if found[1].Name() != "Gree AC 10.0.0.6" {
		t.Errorf("default name = %q", found[1].Name())
	}

	unique := DedupeByAddress(found)
	if len(unique) != 2 {
		t.Errorf("DedupeByAddress() = %d devices, want 2", len(unique))
	}
}
