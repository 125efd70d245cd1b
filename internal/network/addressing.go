package network

import (
	"net"
)

// Addressing is what was observed on an uplink interface at one moment.
type Addressing struct {
	IfName  string
	Up      bool
	Address net.IP
	Prefix  *net.IPNet
	Gateway net.IP
	DNS     []net.IP
}

// HasAddress reports whether the interface carries a usable unicast address.
func (a Addressing) HasAddress() bool {
	return a.Address != nil && !a.Address.IsUnspecified() && !a.Address.IsLinkLocalUnicast()
}

// WithDNS returns a copy of a carrying the given resolver pair.
// Nil servers are skipped.
func (a Addressing) WithDNS(servers ...net.IP) Addressing {
	dns := make([]net.IP, 0, len(servers))
	for _, s := range servers {
		if s != nil {
			dns = append(dns, s)
		}
	}
	a.DNS = dns
	return a
}
