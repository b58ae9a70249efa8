package gree

import (
	"strconv"
	"sync"
	"testing"
)

func TestRegistry_AddRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	transport := &countingTransport{}

	first := NewSession(NewDevice(DeviceOptions{Host: "10.0.0.5"}), SessionConfig{Transport: transport})
	if !r.Add(first) {
		t.Fatal("first Add() should succeed")
	}

	sameID := NewSession(NewDevice(DeviceOptions{ID: "10_0_0_5", Host: "10.0.0.9"}), SessionConfig{Transport: transport})
	if r.Add(sameID) {
		t.Error("Add() with duplicate ID should fail")
	}

	sameAddr := NewSession(NewDevice(DeviceOptions{ID: "lounge", Host: "10.0.0.5"}), SessionConfig{Transport: transport})
	if r.Add(sameAddr) {
		t.Error("Add() with duplicate address should fail")
	}

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if s, ok := r.GetByAddress("10.0.0.5:7000"); !ok || s != first {
		t.Error("GetByAddress() should return the first session")
	}
}

func TestRegistry_ListKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	hosts := []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"}
	for _, h := range hosts {
		r.Add(NewSession(NewDevice(DeviceOptions{Host: h}), SessionConfig{Transport: &countingTransport{}}))
	}

	snaps := r.Snapshots()
	for i, h := range hosts {
		if snaps[i].Host != h {
			t.Errorf("Snapshots()[%d].Host = %q, want %q", i, snaps[i].Host, h)
		}
	}
	if _, ok := r.Snapshot("missing"); ok {
		t.Error("Snapshot() of unknown ID should fail")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Add(NewSession(NewDevice(DeviceOptions{Host: "10.1.0." + strconv.Itoa(i)}), SessionConfig{Transport: &countingTransport{}}))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Snapshots()
		}()
	}
	wg.Wait()
	if r.Len() != 50 {
		t.Errorf("Len() = %d, want 50", r.Len())
	}
}

func TestDevice_Defaults(t *testing.T) {
	d := NewDevice(DeviceOptions{Host: "192.168.1.20"})
	if d.ID() != "192_168_1_20" || d.Port() != 7000 || d.Name() != "Gree AC 192.168.1.20" || d.Brand() != "gree" {
		t.Errorf("defaults = %+v", d.Snapshot())
	}
	if d.BindState() != Unbound || d.Available() {
		t.Error("new device should be unbound and unavailable")
	}
}

func TestDevice_KeySetOnce(t *testing.T) {
	d := NewDevice(DeviceOptions{Host: "192.168.1.20"})
	if !d.bind("first-key-000000", KeyNegotiated) {
		t.Fatal("first bind should set the key")
	}
	if d.bind("second-key-00000", KeyNegotiated) {
		t.Error("second bind should not replace the key")
	}
	if k, _ := d.Key(); k != "first-key-000000" {
		t.Errorf("key = %q", k)
	}

	d.Unbind()
	if d.BindState() != Unbound {
		t.Error("Unbind() should clear the key")
	}
}

func TestDevice_SnapshotOmitsKey(t *testing.T) {
	d := NewDevice(DeviceOptions{Host: "192.168.1.20", Key: "secretsecret0000"})
	s := d.Snapshot()
	if s.BindState != "bound" || s.KeySource != KeyConfigured {
		t.Errorf("snapshot = %+v", s)
	}
	if s.LastSeen != nil || s.State != nil {
		t.Error("fresh device should have no lastSeen or state")
	}
}
