//go:build !linux

package network

import "net"

// Gateways are only discovered through netlink.
func defaultGateway(string, bool) (net.IP, error) {
	return nil, nil
}
