package routing

import (
	"fmt"
	"net"
)

// MainTable is the kernel main routing table.
const MainTable = 254

// Route is one kernel route as seen by the backend.
type Route struct {
	Dst    *net.IPNet
	Gw     net.IP
	IfName string
	Metric int
	Table  int
}

// IsDefault reports whether the route is a default route.
func (r Route) IsDefault() bool {
	if r.Dst == nil {
		return true
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0
}

// IPv4 reports the address family of the route.
func (r Route) IPv4() bool {
	switch {
	case r.Dst != nil:
		return r.Dst.IP.To4() != nil
	case r.Gw != nil:
		return r.Gw.To4() != nil
	default:
		return true
	}
}

// Equal compares the fields that identify and shape a route.
func (r Route) Equal(o Route) bool {
	return r.IfName == o.IfName && r.Metric == o.Metric && r.Table == o.Table &&
		r.Gw.Equal(o.Gw) && r.IsDefault() == o.IsDefault() && r.IPv4() == o.IPv4() &&
		(r.IsDefault() || r.Dst.String() == o.Dst.String())
}

func (r Route) String() string {
	dst := "default"
	if !r.IsDefault() {
		dst = r.Dst.String()
	}
	gw := "direct"
	if r.Gw != nil {
		gw = r.Gw.String()
	}
	return fmt.Sprintf("%s via %s dev %s metric %d table %d", dst, gw, r.IfName, r.Metric, r.Table)
}

// Rule is a source policy rule sending a client into a routing table.
type Rule struct {
	Src      *net.IPNet
	Table    int
	Priority int
}

func (r Rule) String() string {
	return fmt.Sprintf("from %s lookup %d pref %d", r.Src, r.Table, r.Priority)
}

// System is the kernel routing backend.
// Errors returned by it are *RouteError.
type System interface {
	RouteAdd(r Route) error
	RouteDel(r Route) error
	// RouteList returns routes in table. An empty ifName matches every interface.
	RouteList(ifName string, table int) ([]Route, error)
	RuleAdd(r Rule) error
	RuleDel(r Rule) error
	RuleList(table int) ([]Rule, error)
}
