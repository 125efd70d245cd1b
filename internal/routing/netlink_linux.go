//go:build linux

package routing

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

type netlinkSystem struct{}

// NewSystem returns the netlink-backed routing backend.
func NewSystem() (System, error) {
	return &netlinkSystem{}, nil
}

func (s *netlinkSystem) toNetlink(action string, r Route) (*netlink.Route, error) {
	nr := &netlink.Route{
		Dst:      r.Dst,
		Gw:       r.Gw,
		Priority: r.Metric,
		Table:    r.Table,
	}
	if nr.Table == 0 {
		nr.Table = unix.RT_TABLE_MAIN
	}
	if nr.Dst == nil {
		if r.IPv4() {
			nr.Dst = &net.IPNet{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)}
		} else {
			nr.Dst = &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
		}
	}
	if r.IfName != "" {
		link, err := netlink.LinkByName(r.IfName)
		if err != nil {
			return nil, &RouteError{Type: ErrInvalidRoute, Action: action, Destination: r.Dst, Gateway: r.Gw, IfName: r.IfName,
				Cause: fmt.Errorf("failed to find interface: %w", err)}
		}
		nr.LinkIndex = link.Attrs().Index
	}
	if r.Gw == nil {
		nr.Scope = netlink.SCOPE_LINK
	}
	return nr, nil
}

func (s *netlinkSystem) RouteAdd(r Route) error {
	nr, err := s.toNetlink("add", r)
	if err != nil {
		return err
	}
	if err := netlink.RouteAdd(nr); err != nil {
		return &RouteError{Type: classify(err), Action: "add", Destination: r.Dst, Gateway: r.Gw, IfName: r.IfName, Cause: err}
	}
	return nil
}

func (s *netlinkSystem) RouteDel(r Route) error {
	nr, err := s.toNetlink("delete", r)
	if err != nil {
		return err
	}
	if err := netlink.RouteDel(nr); err != nil {
		return &RouteError{Type: classify(err), Action: "delete", Destination: r.Dst, Gateway: r.Gw, IfName: r.IfName, Cause: err}
	}
	return nil
}

func (s *netlinkSystem) RouteList(ifName string, table int) ([]Route, error) {
	filter := &netlink.Route{Table: table}
	mask := uint64(netlink.RT_FILTER_TABLE)
	if ifName != "" {
		link, err := netlink.LinkByName(ifName)
		if err != nil {
			// an absent interface has no routes
			if _, ok := err.(netlink.LinkNotFoundError); ok {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to find interface %s: %w", ifName, err)
		}
		filter.LinkIndex = link.Attrs().Index
		mask |= netlink.RT_FILTER_OIF
	}

	found, err := netlink.RouteListFiltered(netlink.FAMILY_ALL, filter, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes in table %d: %w", table, err)
	}

	names := make(map[int]string)
	routes := make([]Route, 0, len(found))
	for _, nr := range found {
		name, ok := names[nr.LinkIndex]
		if !ok {
			if link, err := netlink.LinkByIndex(nr.LinkIndex); err == nil {
				name = link.Attrs().Name
			}
			names[nr.LinkIndex] = name
		}
		routes = append(routes, Route{
			Dst:    nr.Dst,
			Gw:     nr.Gw,
			IfName: name,
			Metric: nr.Priority,
			Table:  nr.Table,
		})
	}
	return routes, nil
}

func toNetlinkRule(r Rule) *netlink.Rule {
	nr := netlink.NewRule()
	nr.Src = r.Src
	nr.Table = r.Table
	nr.Priority = r.Priority
	nr.Family = netlink.FAMILY_V4
	if r.Src != nil && r.Src.IP.To4() == nil {
		nr.Family = netlink.FAMILY_V6
	}
	return nr
}

func (s *netlinkSystem) RuleAdd(r Rule) error {
	if err := netlink.RuleAdd(toNetlinkRule(r)); err != nil {
		return &RouteError{Type: classify(err), Action: "rule-add", Destination: r.Src, Cause: err}
	}
	return nil
}

func (s *netlinkSystem) RuleDel(r Rule) error {
	if err := netlink.RuleDel(toNetlinkRule(r)); err != nil {
		return &RouteError{Type: classify(err), Action: "rule-delete", Destination: r.Src, Cause: err}
	}
	return nil
}

func (s *netlinkSystem) RuleList(table int) ([]Rule, error) {
	var rules []Rule
	for _, family := range []int{netlink.FAMILY_V4, netlink.FAMILY_V6} {
		found, err := netlink.RuleList(family)
		if err != nil {
			return nil, fmt.Errorf("failed to list rules: %w", err)
		}
		for _, nr := range found {
			if nr.Table != table || nr.Src == nil {
				continue
			}
			rules = append(rules, Rule{Src: nr.Src, Table: nr.Table, Priority: nr.Priority})
		}
	}
	return rules, nil
}
