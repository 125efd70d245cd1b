package network

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesleywu/lte-failover/internal/clients"
	"github.com/wesleywu/lte-failover/internal/logger"
)

const leaseFile = `1700000000 aa:bb:cc:dd:ee:01 192.168.1.10 laptop 01:aa:bb:cc:dd:ee:01
1700000000 aa:bb:cc:dd:ee:02 192.168.1.11 * *
duid 00:01:00:01:2c:aa:bb:cc
garbage
`

func TestParseLeases(t *testing.T) {
	leases, err := ParseLeases(strings.NewReader(leaseFile))
	if err != nil {
		t.Fatalf("ParseLeases failed: %v", err)
	}
	if len(leases) != 2 {
		t.Fatalf("Expected 2 leases, got %d", len(leases))
	}
	if leases[0].Name != "laptop" || leases[0].Address != "192.168.1.10" || leases[0].MAC != "aa:bb:cc:dd:ee:01" {
		t.Errorf("unexpected lease %+v", leases[0])
	}
	if leases[1].Name != "" {
		t.Errorf("wildcard hostname should be empty, got %q", leases[1].Name)
	}
}

func TestDiffLeases(t *testing.T) {
	a := clients.Lease{Name: "a", Address: "10.0.0.1", MAC: "aa:aa:aa:aa:aa:aa"}
	b := clients.Lease{Name: "b", Address: "10.0.0.2", MAC: "bb:bb:bb:bb:bb:bb"}
	b2 := clients.Lease{Name: "b-renamed", Address: "10.0.0.2", MAC: "bb:bb:bb:bb:bb:bb"}
	c := clients.Lease{Name: "c", Address: "10.0.0.3", MAC: "cc:cc:cc:cc:cc:cc"}

	prev := map[string]clients.Lease{a.Address: a, b.Address: b}
	cur := map[string]clients.Lease{b.Address: b2, c.Address: c}

	events := diffLeases(prev, cur)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %v", events)
	}
	if !events[0].Removed || events[0].Lease != a {
		t.Errorf("removal should come first, got %+v", events[0])
	}

	added := map[string]bool{}
	for _, ev := range events[1:] {
		if ev.Removed {
			t.Errorf("unexpected removal %+v", ev)
		}
		added[ev.Lease.Name] = true
	}
	if !added["b-renamed"] || !added["c"] {
		t.Errorf("missing updates: %v", added)
	}

	if len(diffLeases(cur, cur)) != 0 {
		t.Error("identical sets should produce no events")
	}
}

func nextLease(t *testing.T, w *LeaseWatcher) LeaseEvent {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for lease event")
		return LeaseEvent{}
	}
}

func TestLeaseWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dhcp.leases")
	if err := os.WriteFile(path, []byte("1700000000 aa:bb:cc:dd:ee:01 192.168.1.10 laptop *\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewLeaseWatcher(path, logger.Discard())
	w.settle = 10 * time.Millisecond
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ev := nextLease(t, w)
	if ev.Removed || ev.Lease.Address != "192.168.1.10" {
		t.Errorf("unexpected initial event %+v", ev)
	}

	// replace the file the way dnsmasq does
	tmp := filepath.Join(dir, "dhcp.leases.new")
	if err := os.WriteFile(tmp, []byte("1700000000 aa:bb:cc:dd:ee:02 192.168.1.11 phone *\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	ev = nextLease(t, w)
	if !ev.Removed || ev.Lease.Address != "192.168.1.10" {
		t.Errorf("Expected removal of 192.168.1.10, got %+v", ev)
	}
	ev = nextLease(t, w)
	if ev.Removed || ev.Lease.Address != "192.168.1.11" {
		t.Errorf("Expected addition of 192.168.1.11, got %+v", ev)
	}
}
