package routing

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/wesleywu/lte-failover/internal/routing/batch"
	"github.com/wesleywu/lte-failover/internal/utils"
)

func (m *Manager) clientRule(ip net.IP) Rule {
	return Rule{Src: utils.ToIPNet(ip), Table: m.opts.ClientTable, Priority: m.opts.RulePriority}
}

// ensureClientTable points the default route of the client table at the LTE uplink.
func (m *Manager) ensureClientTable() error {
	if !m.lte.Valid() {
		return &RouteError{Type: ErrInvalidRoute, Action: "client-table", Cause: errors.New("lte uplink has no interface")}
	}
	existing, err := m.defaults("", m.lte.IPv4(), m.opts.ClientTable)
	if err != nil {
		return fmt.Errorf("failed to list client table: %w", err)
	}

	want := Route{Dst: defaultDst(m.lte.IPv4()), Gw: m.lte.Gateway, IfName: m.lte.IfName, Table: m.opts.ClientTable}
	if len(existing) == 1 && existing[0].Equal(want) {
		return nil
	}
	for _, r := range existing {
		if err := m.exec("delete", r); err != nil {
			return err
		}
	}
	return m.exec("add", want)
}

// AddClientRoutes steers every client of src through the LTE uplink. It
// returns after all rule changes have completed.
func (m *Manager) AddClientRoutes(ctx context.Context, src ClientSource) error {
	if err := m.ensureClientTable(); err != nil {
		return fmt.Errorf("failed to prepare client table: %w", err)
	}

	var pending []net.IP
	for _, ip := range src.Addresses() {
		if !m.clients.contains(ip) && utils.IsIPv4(ip) == m.lte.IPv4() {
			pending = append(pending, ip)
		}
	}
	return m.runRules(ctx, "add", pending)
}

// AddClientRoute steers a single client through the LTE uplink. Clients of
// the other address family are left alone.
func (m *Manager) AddClientRoute(ctx context.Context, ip net.IP) error {
	if m.clients.contains(ip) || utils.IsIPv4(ip) != m.lte.IPv4() {
		return nil
	}
	if err := m.ensureClientTable(); err != nil {
		return fmt.Errorf("failed to prepare client table: %w", err)
	}
	return m.runRules(ctx, "add", []net.IP{ip})
}

// DeleteClientRoute removes the rule of a single client, if installed.
func (m *Manager) DeleteClientRoute(ctx context.Context, ip net.IP) error {
	if !m.clients.contains(ip) {
		return nil
	}
	return m.runRules(ctx, "delete", []net.IP{ip})
}

// RestoreClientRoutes removes every client rule and the client table route.
func (m *Manager) RestoreClientRoutes(ctx context.Context) error {
	if err := m.runRules(ctx, "delete", m.clients.list()); err != nil {
		return err
	}
	return m.flushClientTable()
}

func (m *Manager) flushClientTable() error {
	routes, err := m.sys.RouteList("", m.opts.ClientTable)
	if err != nil {
		return fmt.Errorf("failed to list client table: %w", err)
	}
	for _, r := range routes {
		if err := m.exec("delete", r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) runRules(ctx context.Context, action string, ips []net.IP) error {
	if len(ips) == 0 {
		return nil
	}

	ops := make([]batch.Op, len(ips))
	for i, ip := range ips {
		rule := m.clientRule(ip)
		ops[i] = func() error { return m.execRule(action, rule) }
	}

	res := m.runner.Run(ctx, ops)
	for i, ip := range ips {
		if res.Errors[i] != nil {
			continue
		}
		if action == "add" {
			m.clients.add(ip)
		} else {
			m.clients.remove(ip)
		}
	}

	m.log.BatchOperation("client-"+action, res.Total, res.Succeeded, res.Failed, res.Duration.Milliseconds())
	return res.Err()
}
