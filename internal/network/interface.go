package network

import (
	"fmt"
	"net"
)

// Observe reads the current addressing of an interface: link state, first
// global unicast address of each family and the default gateway on the link.
// A missing interface is reported as down rather than as an error.
func Observe(ifName string) (Addressing, error) {
	obs := Addressing{IfName: ifName}

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return obs, nil
	}
	obs.Up = iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0

	addrs, err := iface.Addrs()
	if err != nil {
		return obs, fmt.Errorf("failed to get addresses of %s: %w", ifName, err)
	}
	obs.Address, obs.Prefix = pickAddress(addrs)

	if obs.Up {
		gw, err := defaultGateway(ifName, obs.Address == nil || obs.Address.To4() != nil)
		if err != nil {
			return obs, fmt.Errorf("failed to get gateway of %s: %w", ifName, err)
		}
		obs.Gateway = gw
	}
	return obs, nil
}

// pickAddress prefers IPv4 and skips loopback and link-local addresses.
func pickAddress(addrs []net.Addr) (net.IP, *net.IPNet) {
	var v6 *net.IPNet
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4, &net.IPNet{IP: ip4.Mask(ipNet.Mask), Mask: ipNet.Mask}
		}
		if v6 == nil {
			v6 = ipNet
		}
	}
	if v6 != nil {
		return v6.IP, &net.IPNet{IP: v6.IP.Mask(v6.Mask), Mask: v6.Mask}
	}
	return nil, nil
}

// WanUsable reports whether the WAN can carry traffic: link up, an address and a gateway.
func (a Addressing) WanUsable() bool {
	return a.Up && a.HasAddress() && a.Gateway != nil
}

// LteUsable reports whether the LTE link can carry traffic. Point-to-point
// modems have no gateway, so an address is enough.
func (a Addressing) LteUsable() bool {
	return a.Up && a.HasAddress()
}
