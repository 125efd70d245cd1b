package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wesleywu/lte-failover/internal/logger"
)

// LinkEvent carries the new addressing of a watched uplink.
type LinkEvent struct {
	Type       EventType
	Interface  string
	Addressing Addressing
	Timestamp  time.Time
}

type EventType int

const (
	InterfaceUp EventType = iota
	InterfaceDown
	AddressChanged
	GatewayChanged
)

func (e EventType) String() string {
	switch e {
	case InterfaceUp:
		return "InterfaceUp"
	case InterfaceDown:
		return "InterfaceDown"
	case AddressChanged:
		return "AddressChanged"
	case GatewayChanged:
		return "GatewayChanged"
	default:
		return "Unknown"
	}
}

// Monitor watches a set of uplink interfaces. Kernel notifications trigger a
// rescan; a poll ticker covers missed notifications.
type Monitor struct {
	log          *logger.Logger
	pollInterval time.Duration
	observe      func(string) (Addressing, error)

	mutex    sync.Mutex
	ifaces   []string
	last     map[string]Addressing
	events   chan LinkEvent
	trigger  chan struct{}
	running  bool
	stopOnce sync.Once
}

func NewMonitor(pollInterval time.Duration, log *logger.Logger) *Monitor {
	return &Monitor{
		log:          log.WithComponent("link-monitor"),
		pollInterval: pollInterval,
		observe:      Observe,
		last:         make(map[string]Addressing),
		events:       make(chan LinkEvent, 64),
		trigger:      make(chan struct{}, 1),
	}
}

// Watch sets the interfaces to follow. Changing the set forces a rescan.
func (m *Monitor) Watch(ifNames ...string) {
	m.mutex.Lock()
	m.ifaces = append([]string(nil), ifNames...)
	for name := range m.last {
		keep := false
		for _, n := range ifNames {
			keep = keep || n == name
		}
		if !keep {
			delete(m.last, name)
		}
	}
	m.mutex.Unlock()
	m.kick()
}

func (m *Monitor) Events() <-chan LinkEvent {
	return m.events
}

// Current returns the last observed addressing of an interface.
func (m *Monitor) Current(ifName string) (Addressing, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	a, ok := m.last[ifName]
	return a, ok
}

func (m *Monitor) kick() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Start runs the monitor until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mutex.Lock()
	if m.running {
		m.mutex.Unlock()
		return fmt.Errorf("link monitor is already running")
	}
	m.running = true
	m.mutex.Unlock()

	if err := subscribe(ctx, m.kick); err != nil {
		m.log.Warn("kernel link notifications unavailable, polling only", "error", err)
	}

	go m.loop(ctx)
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	defer m.stopOnce.Do(func() { close(m.events) })

	m.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		case <-m.trigger:
			m.scan(ctx)
		}
	}
}

// scan observes every watched interface and emits an event for each change.
func (m *Monitor) scan(ctx context.Context) {
	m.mutex.Lock()
	ifaces := append([]string(nil), m.ifaces...)
	m.mutex.Unlock()

	for _, name := range ifaces {
		obs, err := m.observe(name)
		if err != nil {
			m.log.Debug("failed to observe interface", "interface", name, "error", err)
			continue
		}

		m.mutex.Lock()
		prev, seen := m.last[name]
		m.last[name] = obs
		m.mutex.Unlock()

		evType, changed := compare(prev, obs, seen)
		if !changed {
			continue
		}

		m.log.LinkChange(name, linkState(prev, seen), linkState(obs, true))
		select {
		case m.events <- LinkEvent{Type: evType, Interface: name, Addressing: obs, Timestamp: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

func compare(prev, cur Addressing, seen bool) (EventType, bool) {
	switch {
	case !seen || prev.Up != cur.Up:
		if cur.Up {
			return InterfaceUp, true
		}
		return InterfaceDown, true
	case !prev.Address.Equal(cur.Address) || prefixString(prev.Prefix) != prefixString(cur.Prefix):
		return AddressChanged, true
	case !prev.Gateway.Equal(cur.Gateway):
		return GatewayChanged, true
	default:
		return 0, false
	}
}

func prefixString(p *net.IPNet) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func linkState(a Addressing, seen bool) string {
	switch {
	case !seen:
		return "unknown"
	case a.Up:
		return "up"
	default:
		return "down"
	}
}
