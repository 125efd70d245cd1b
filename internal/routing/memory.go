package routing

import (
	"sync"

	"golang.org/x/sys/unix"
)

// MemorySystem is an in-process System. It backs dry-run mode and tests.
type MemorySystem struct {
	mu     sync.Mutex
	routes []Route
	rules  []Rule
	ops    int
	fault  func(action string, r Route) error
}

func NewMemorySystem() *MemorySystem {
	return &MemorySystem{}
}

// SetFault installs a hook consulted before every route change. A non-nil
// result fails the operation with that cause.
func (m *MemorySystem) SetFault(fn func(action string, r Route) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

// Ops returns how many mutating calls were made.
func (m *MemorySystem) Ops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops
}

func (m *MemorySystem) failed(action string, r Route) error {
	if m.fault == nil {
		return nil
	}
	if cause := m.fault(action, r); cause != nil {
		return &RouteError{Type: classify(cause), Action: action, Destination: r.Dst, Gateway: r.Gw, IfName: r.IfName, Cause: cause}
	}
	return nil
}

// kernel identity: family, destination, table and metric
func sameSlot(a, b Route) bool {
	if a.Table != b.Table || a.Metric != b.Metric || a.IPv4() != b.IPv4() || a.IsDefault() != b.IsDefault() {
		return false
	}
	return a.IsDefault() || a.Dst.String() == b.Dst.String()
}

func (m *MemorySystem) RouteAdd(r Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if err := m.failed("add", r); err != nil {
		return err
	}
	for _, existing := range m.routes {
		if sameSlot(existing, r) {
			return &RouteError{Type: ErrExists, Action: "add", Destination: r.Dst, Gateway: r.Gw, IfName: r.IfName, Cause: unix.EEXIST}
		}
	}
	m.routes = append(m.routes, r)
	return nil
}

func (m *MemorySystem) RouteDel(r Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if err := m.failed("delete", r); err != nil {
		return err
	}
	for i, existing := range m.routes {
		if sameSlot(existing, r) && (r.IfName == "" || r.IfName == existing.IfName) {
			m.routes = append(m.routes[:i], m.routes[i+1:]...)
			return nil
		}
	}
	return &RouteError{Type: ErrNotFound, Action: "delete", Destination: r.Dst, Gateway: r.Gw, IfName: r.IfName, Cause: unix.ESRCH}
}

func (m *MemorySystem) RouteList(ifName string, table int) ([]Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Route
	for _, r := range m.routes {
		if r.Table == table && (ifName == "" || r.IfName == ifName) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemorySystem) RuleAdd(r Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if err := m.failed("rule-add", Route{Dst: r.Src, Table: r.Table}); err != nil {
		return err
	}
	for _, existing := range m.rules {
		if sameRule(existing, r) {
			return &RouteError{Type: ErrExists, Action: "rule-add", Destination: r.Src, Cause: unix.EEXIST}
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *MemorySystem) RuleDel(r Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if err := m.failed("rule-delete", Route{Dst: r.Src, Table: r.Table}); err != nil {
		return err
	}
	for i, existing := range m.rules {
		if sameRule(existing, r) {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return &RouteError{Type: ErrNotFound, Action: "rule-delete", Destination: r.Src, Cause: unix.ENOENT}
}

func (m *MemorySystem) RuleList(table int) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Rule
	for _, r := range m.rules {
		if r.Table == table {
			out = append(out, r)
		}
	}
	return out, nil
}

func sameRule(a, b Rule) bool {
	return a.Table == b.Table && a.Priority == b.Priority && a.Src.String() == b.Src.String()
}

// Seed installs routes without counting them as operations.
func (m *MemorySystem) Seed(routes ...Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, routes...)
}

// DefaultRoutes returns the default routes of the main table.
func (m *MemorySystem) DefaultRoutes() []Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Route
	for _, r := range m.routes {
		if r.Table == MainTable && r.IsDefault() {
			out = append(out, r)
		}
	}
	return out
}

// Preferred returns the lowest-metric default route of the given family.
func (m *MemorySystem) Preferred(ipv4 bool) (Route, bool) {
	var best Route
	found := false
	for _, r := range m.DefaultRoutes() {
		if r.IPv4() != ipv4 {
			continue
		}
		if !found || r.Metric < best.Metric {
			best, found = r, true
		}
	}
	return best, found
}

var _ System = (*MemorySystem)(nil)
