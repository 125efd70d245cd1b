//go:build linux

package network

import (
	"context"
	"fmt"

	"github.com/vishvananda/netlink"
)

// subscribe calls kick on every link, address or route notification from the kernel.
func subscribe(ctx context.Context, kick func()) error {
	links := make(chan netlink.LinkUpdate, 16)
	addrs := make(chan netlink.AddrUpdate, 16)
	routes := make(chan netlink.RouteUpdate, 16)

	if err := netlink.LinkSubscribe(links, ctx.Done()); err != nil {
		return fmt.Errorf("failed to subscribe to link updates: %w", err)
	}
	if err := netlink.AddrSubscribe(addrs, ctx.Done()); err != nil {
		return fmt.Errorf("failed to subscribe to address updates: %w", err)
	}
	if err := netlink.RouteSubscribe(routes, ctx.Done()); err != nil {
		return fmt.Errorf("failed to subscribe to route updates: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-links:
				if !ok {
					links = nil
					continue
				}
				kick()
			case _, ok := <-addrs:
				if !ok {
					addrs = nil
					continue
				}
				kick()
			case _, ok := <-routes:
				if !ok {
					routes = nil
					continue
				}
				kick()
			}
		}
	}()
	return nil
}
