package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	mdns "github.com/miekg/dns"

	"github.com/wesleywu/lte-failover/internal/utils"
)

// ErrDNSProbe marks a resolver that did not answer the probe.
var ErrDNSProbe = errors.New("dns probe failed")

// Via pins a probe to one uplink. Zero fields are left to the kernel.
type Via struct {
	IfName  string
	Address net.IP
}

func (v Via) dialer(timeout time.Duration) *net.Dialer {
	d := &net.Dialer{Timeout: timeout}
	if v.Address != nil {
		d.LocalAddr = &net.UDPAddr{IP: v.Address}
	}
	if v.IfName != "" {
		d.Control = bindToDevice(v.IfName)
	}
	return d
}

// Probe asks the resolver at addr (host:port) for the A record of hostname,
// sending the query out through via. It tries twice before giving up.
func Probe(ctx context.Context, addr, hostname string, via Via, timeout time.Duration) error {
	client := &mdns.Client{Net: "udp", Timeout: timeout, Dialer: via.dialer(timeout)}

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(hostname), mdns.TypeA)
	msg.RecursionDesired = true

	err := retry.Do(func() error {
		resp, _, err := client.ExchangeContext(ctx, msg, addr)
		if err != nil {
			return err
		}
		if resp.Rcode != mdns.RcodeSuccess {
			return fmt.Errorf("rcode %s", mdns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			if _, ok := rr.(*mdns.A); ok {
				return nil
			}
		}
		return errors.New("no A record in answer")
	},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %s via %s: %v", ErrDNSProbe, hostname, addr, err)
	}
	return nil
}

// CheckDNS probes one resolver on the standard port through the given uplink.
// A source address of the other family is dropped.
func (s *Switcher) CheckDNS(ctx context.Context, server net.IP, via Via, hostname string) error {
	if server == nil {
		return fmt.Errorf("%w: no resolver address", ErrDNSProbe)
	}
	if hostname == "" {
		hostname = s.probeHost
	}
	if via.Address != nil && !utils.SameFamily(server, via.Address) {
		via.Address = nil
	}
	return Probe(ctx, net.JoinHostPort(server.String(), s.port), hostname, via, s.timeout)
}
