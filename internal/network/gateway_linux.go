//go:build linux

package network

import (
	"net"

	"github.com/vishvananda/netlink"
)

func defaultGateway(ifName string, ipv4 bool) (net.IP, error) {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return nil, err
	}

	family := netlink.FAMILY_V4
	if !ipv4 {
		family = netlink.FAMILY_V6
	}
	routes, err := netlink.RouteListFiltered(family, &netlink.Route{LinkIndex: link.Attrs().Index}, netlink.RT_FILTER_OIF)
	if err != nil {
		return nil, err
	}

	var best net.IP
	bestMetric := -1
	for _, r := range routes {
		if r.Gw == nil {
			continue
		}
		if r.Dst != nil {
			if ones, _ := r.Dst.Mask.Size(); ones != 0 {
				continue
			}
		}
		if bestMetric < 0 || r.Priority < bestMetric {
			best, bestMetric = r.Gw, r.Priority
		}
	}
	return best, nil
}
