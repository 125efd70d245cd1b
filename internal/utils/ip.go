package utils

import (
	"fmt"
	"net"
	"strings"
)

// ParseHostAddr parses a single IPv4 or IPv6 host address.
// Zones, CIDR suffixes and surrounding whitespace are rejected so that
// malformed store or lease values never reach the routing layer.
func ParseHostAddr(s string) (net.IP, error) {
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}
	if strings.TrimSpace(s) != s {
		return nil, fmt.Errorf("address %q has surrounding whitespace", s)
	}
	if strings.ContainsAny(s, "/%") {
		return nil, fmt.Errorf("address %q must be a bare host address", s)
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", s)
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, nil
	}
	return ip, nil
}

// ParseOptionalAddr is ParseHostAddr for fields that may be empty.
func ParseOptionalAddr(s string) (net.IP, error) {
	if s == "" {
		return nil, nil
	}
	return ParseHostAddr(s)
}

// ToIPNet converts an IP address to a host network (/32 or /128)
func ToIPNet(ip net.IP) *net.IPNet {
	var ipNet *net.IPNet
	if ip4 := ip.To4(); ip4 != nil {
		ipNet = &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
	} else {
		ipNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
	}
	return ipNet
}

// IsIPv4 reports whether ip is an IPv4 (or v4-mapped) address.
func IsIPv4(ip net.IP) bool {
	return ip.To4() != nil
}

// DefaultDst returns the default destination for the address family of ip.
func DefaultDst(ip net.IP) *net.IPNet {
	if IsIPv4(ip) {
		return &net.IPNet{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)}
	}
	return &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
}

// MaskString renders a mask in dotted form for IPv4 and prefix length for IPv6.
func MaskString(mask net.IPMask) string {
	if len(mask) == net.IPv4len {
		return net.IP(mask).String()
	}
	ones, _ := mask.Size()
	return fmt.Sprintf("/%d", ones)
}

// SameFamily reports whether two addresses belong to the same address family.
func SameFamily(a, b net.IP) bool {
	return IsIPv4(a) == IsIPv4(b)
}
