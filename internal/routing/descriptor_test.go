package routing

import (
	"net"
	"testing"
)

func TestFromAddressing(t *testing.T) {
	d := fromAddressing(lteObs(), LteDefaultMetric)

	if d.IfName != "wwan0" || d.Metric != LteDefaultMetric {
		t.Errorf("unexpected descriptor %+v", d)
	}
	if d.Subnet.String() != "10.64.0.0" {
		t.Errorf("Subnet = %v", d.Subnet)
	}
	if net.IP(d.Netmask).String() != "255.255.255.252" {
		t.Errorf("Netmask = %v", d.Netmask)
	}
	if !d.DNS1.Equal(net.ParseIP("10.10.0.1")) || !d.DNS2.Equal(net.ParseIP("10.10.0.2")) {
		t.Errorf("DNS = %v %v", d.DNS1, d.DNS2)
	}
	if len(d.DNS()) != 2 {
		t.Errorf("Expected 2 DNS servers, got %v", d.DNS())
	}
}

func TestFingerprint(t *testing.T) {
	a := fromAddressing(wanObs(), WanDefaultMetric)
	b := fromAddressing(wanObs(), WanDefaultMetric)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal descriptors should share a fingerprint")
	}

	c := a
	c.Metric = WanL3FailMetric
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("metric change should change the fingerprint")
	}

	d := a
	d.DNS2 = net.ParseIP("8.8.8.8")
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("dns change should change the fingerprint")
	}
}

func TestDescriptorFamily(t *testing.T) {
	if !(Descriptor{IfName: "x"}).IPv4() {
		t.Error("unknown family should default to IPv4")
	}
	if (Descriptor{IfName: "x", Gateway: net.ParseIP("fe80::1")}).IPv4() {
		t.Error("IPv6 gateway should make the descriptor IPv6")
	}
}
