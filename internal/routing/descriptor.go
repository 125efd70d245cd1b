package routing

import (
	"encoding/binary"
	"net"

	"github.com/cespare/xxhash/v2"

	"github.com/wesleywu/lte-failover/internal/network"
	"github.com/wesleywu/lte-failover/internal/utils"
)

// Route metrics. A lower metric wins.
const (
	WanDefaultMetric = 0
	LteDefaultMetric = 100
	WanL3FailMetric  = 110
)

// Descriptor is the route state of one uplink. It is replaced wholesale on
// refresh and never mutated in place.
type Descriptor struct {
	IfName  string     `json:"if_name"`
	Address net.IP     `json:"address,omitempty"`
	Subnet  net.IP     `json:"subnet,omitempty"`
	Netmask net.IPMask `json:"netmask,omitempty"`
	Gateway net.IP     `json:"gateway,omitempty"`
	Metric  int        `json:"metric"`
	DNS1    net.IP     `json:"dns1,omitempty"`
	DNS2    net.IP     `json:"dns2,omitempty"`
}

// Valid reports whether the descriptor names an interface.
func (d Descriptor) Valid() bool {
	return d.IfName != ""
}

// IPv4 reports the address family of the descriptor. Unknown family counts as IPv4.
func (d Descriptor) IPv4() bool {
	switch {
	case d.Gateway != nil:
		return utils.IsIPv4(d.Gateway)
	case d.Address != nil:
		return utils.IsIPv4(d.Address)
	default:
		return true
	}
}

// DNS returns the non-empty resolver addresses in order.
func (d Descriptor) DNS() []net.IP {
	var out []net.IP
	for _, ip := range []net.IP{d.DNS1, d.DNS2} {
		if ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// Fingerprint hashes every field so refreshes can be compared cheaply.
func (d Descriptor) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(d.IfName)
	for _, b := range [][]byte{d.Address, d.Subnet, d.Netmask, d.Gateway, d.DNS1, d.DNS2} {
		_, _ = h.Write([]byte{byte(len(b))})
		_, _ = h.Write(b)
	}
	var metric [8]byte
	binary.BigEndian.PutUint64(metric[:], uint64(d.Metric))
	_, _ = h.Write(metric[:])
	return h.Sum64()
}

func fromAddressing(obs network.Addressing, metric int) Descriptor {
	d := Descriptor{
		IfName:  obs.IfName,
		Gateway: cloneIP(obs.Gateway),
		Metric:  metric,
	}
	if obs.HasAddress() {
		d.Address = cloneIP(obs.Address)
	}
	if obs.Prefix != nil {
		d.Subnet = cloneIP(obs.Prefix.IP.Mask(obs.Prefix.Mask))
		d.Netmask = append(net.IPMask(nil), obs.Prefix.Mask...)
	}
	if len(obs.DNS) > 0 {
		d.DNS1 = cloneIP(obs.DNS[0])
	}
	if len(obs.DNS) > 1 {
		d.DNS2 = cloneIP(obs.DNS[1])
	}
	return d
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	if ip4 := ip.To4(); ip4 != nil {
		return append(net.IP(nil), ip4...)
	}
	return append(net.IP(nil), ip...)
}
