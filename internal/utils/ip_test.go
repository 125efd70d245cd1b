package utils

import (
	"net"
	"testing"
)

func TestParseHostAddr(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expected      string
		shouldSucceed bool
	}{
		{"ipv4", "192.168.40.12", "192.168.40.12", true},
		{"ipv6", "fd00::12", "fd00::12", true},
		{"empty", "", "", false},
		{"cidr", "192.168.40.0/24", "", false},
		{"zone", "fe80::1%eth0", "", false},
		{"whitespace", " 10.0.0.1", "", false},
		{"garbage", "not-an-ip", "", false},
		{"truncated", "10.0.0", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ip, err := ParseHostAddr(tc.input)
			if tc.shouldSucceed {
				if err != nil {
					t.Fatalf("Expected success for %q, got error: %v", tc.input, err)
				}
				if ip.String() != tc.expected {
					t.Errorf("Expected %s, got %s", tc.expected, ip.String())
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error for %q, got %v", tc.input, ip)
			}
		})
	}
}

func TestParseHostAddrNormalizesIPv4(t *testing.T) {
	ip, err := ParseHostAddr("10.1.2.3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ip) != net.IPv4len {
		t.Errorf("Expected 4-byte IPv4, got %d bytes", len(ip))
	}
}

func TestParseOptionalAddr(t *testing.T) {
	ip, err := ParseOptionalAddr("")
	if err != nil || ip != nil {
		t.Errorf("Expected nil, nil for empty input, got %v, %v", ip, err)
	}
	if _, err := ParseOptionalAddr("bogus"); err == nil {
		t.Error("Expected error for invalid optional address")
	}
}

func TestToIPNet(t *testing.T) {
	v4 := ToIPNet(net.ParseIP("192.168.1.7"))
	if v4.String() != "192.168.1.7/32" {
		t.Errorf("Expected 192.168.1.7/32, got %s", v4.String())
	}

	v6 := ToIPNet(net.ParseIP("fd00::7"))
	if v6.String() != "fd00::7/128" {
		t.Errorf("Expected fd00::7/128, got %s", v6.String())
	}
}

func TestDefaultDst(t *testing.T) {
	if got := DefaultDst(net.ParseIP("10.0.0.1")).String(); got != "0.0.0.0/0" {
		t.Errorf("Expected 0.0.0.0/0, got %s", got)
	}
	if got := DefaultDst(net.ParseIP("2001:db8::1")).String(); got != "::/0" {
		t.Errorf("Expected ::/0, got %s", got)
	}
}

func TestMaskString(t *testing.T) {
	if got := MaskString(net.CIDRMask(24, 32)); got != "255.255.255.0" {
		t.Errorf("Expected 255.255.255.0, got %s", got)
	}
	if got := MaskString(net.CIDRMask(64, 128)); got != "/64" {
		t.Errorf("Expected /64, got %s", got)
	}
}

func TestSameFamily(t *testing.T) {
	if !SameFamily(net.ParseIP("10.0.0.1"), net.ParseIP("192.168.0.1")) {
		t.Error("two IPv4 addresses should share a family")
	}
	if SameFamily(net.ParseIP("10.0.0.1"), net.ParseIP("fd00::1")) {
		t.Error("IPv4 and IPv6 should not share a family")
	}
}
