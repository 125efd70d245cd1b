package routing

import (
	"context"
	"fmt"

	"github.com/wesleywu/lte-failover/internal/routing/batch"
)

// Cleanup removes client rules and client table routes left by a previous
// run and resets the WAN default metric. It is used at startup and shutdown.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.log.Info("starting route cleanup", "client_table", m.opts.ClientTable)

	rules, err := m.sys.RuleList(m.opts.ClientTable)
	if err != nil {
		return fmt.Errorf("failed to list client rules: %w", err)
	}
	m.log.Info("found client rules to cleanup", "count", len(rules))

	if len(rules) > 0 {
		ops := make([]batch.Op, len(rules))
		for i, r := range rules {
			ops[i] = func() error { return m.execRule("delete", r) }
		}
		res := m.runner.Run(ctx, ops)
		m.log.BatchOperation("cleanup-rules", res.Total, res.Succeeded, res.Failed, res.Duration.Milliseconds())
		if err := res.Err(); err != nil {
			return fmt.Errorf("failed to delete client rules: %w", err)
		}
	}
	m.clients.reset()

	if err := m.flushClientTable(); err != nil {
		return err
	}

	if err := m.RestoreDefaultWan(); err != nil {
		return err
	}

	m.log.Info("route cleanup finished")
	return nil
}
