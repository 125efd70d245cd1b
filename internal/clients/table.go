// Package clients keeps the table of LAN clients learned from DHCP leases.
package clients

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wesleywu/lte-failover/internal/utils"
)

// Lease is one DHCP lease record as delivered by the lease source.
type Lease struct {
	Name    string
	Address string
	MAC     string
}

// Entry is a client known to the table.
type Entry struct {
	Name      string    `json:"name"`
	Address   net.IP    `json:"address"`
	MAC       string    `json:"mac"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Table is an insertion-ordered set of client entries keyed by address.
// It is owned by the reactor goroutine and is not safe for concurrent use.
type Table struct {
	order []string
	byKey map[string]*Entry
	now   func() time.Time
}

// New returns an empty table.
func New() *Table {
	return &Table{
		byKey: make(map[string]*Entry),
		now:   time.Now,
	}
}

func (t *Table) parse(lease Lease) (net.IP, error) {
	ip, err := utils.ParseHostAddr(lease.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid lease address: %w", err)
	}
	if lease.MAC != "" {
		if _, err := net.ParseMAC(lease.MAC); err != nil {
			return nil, fmt.Errorf("invalid lease hwaddr %q: %w", lease.MAC, err)
		}
	}
	return ip, nil
}

// Update inserts or replaces the entry for the lease address.
// The returned bool is true when the address was not known before.
func (t *Table) Update(lease Lease) (Entry, bool, error) {
	ip, err := t.parse(lease)
	if err != nil {
		return Entry{}, false, err
	}

	key := ip.String()
	entry := &Entry{
		Name:      strings.TrimSpace(lease.Name),
		Address:   ip,
		MAC:       strings.ToLower(lease.MAC),
		UpdatedAt: t.now(),
	}

	_, exists := t.byKey[key]
	if !exists {
		t.order = append(t.order, key)
	}
	t.byKey[key] = entry
	return *entry, !exists, nil
}

// Delete removes the entry for the lease address. Unknown addresses are ignored.
func (t *Table) Delete(lease Lease) (Entry, bool) {
	ip, err := utils.ParseHostAddr(lease.Address)
	if err != nil {
		return Entry{}, false
	}

	key := ip.String()
	entry, ok := t.byKey[key]
	if !ok {
		return Entry{}, false
	}
	delete(t.byKey, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return *entry, true
}

// Get looks up an entry by address.
func (t *Table) Get(addr string) (Entry, bool) {
	ip, err := utils.ParseHostAddr(addr)
	if err != nil {
		return Entry{}, false
	}
	entry, ok := t.byKey[ip.String()]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func (t *Table) Len() int {
	return len(t.order)
}

// Entries returns a copy of all entries in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, *t.byKey[key])
	}
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (t *Table) Range(fn func(Entry) bool) {
	for _, key := range t.order {
		if !fn(*t.byKey[key]) {
			return
		}
	}
}

// Addresses returns the client addresses in insertion order.
func (t *Table) Addresses() []net.IP {
	out := make([]net.IP, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.byKey[key].Address)
	}
	return out
}
