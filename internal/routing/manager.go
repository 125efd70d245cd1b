package routing

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
	"github.com/wesleywu/lte-failover/internal/network"
	"github.com/wesleywu/lte-failover/internal/routing/batch"
	"github.com/wesleywu/lte-failover/internal/routing/metrics"
)

// Options tune the route manager.
type Options struct {
	ClientTable      int
	RulePriority     int
	ConcurrencyLimit int
	OpsPerSecond     float64
	OpsBurst         int
	Attempts         uint
	RetryDelay       time.Duration
}

// OptionsFromConfig derives manager options from daemon settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ClientTable:      cfg.ClientRouteTable,
		RulePriority:     cfg.ClientRulePriority,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		OpsPerSecond:     float64(cfg.RouteOpsPerSecond),
		OpsBurst:         cfg.RouteOpsBurst,
		Attempts:         3,
		RetryDelay:       200 * time.Millisecond,
	}
}

// ClientSource lists the client addresses that need a route via the active uplink.
type ClientSource interface {
	Addresses() []net.IP
}

// Manager owns the WAN and LTE route descriptors and enacts them in the kernel.
// Default route methods must be called from one goroutine.
type Manager struct {
	sys     System
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics
	runner  *batch.Runner

	wan       Descriptor
	lte       Descriptor
	wanMetric int
	clients   *clientSet
}

func NewManager(sys System, opts Options, log *logger.Logger) (*Manager, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = 1
	}
	if opts.OpsPerSecond <= 0 {
		opts.OpsPerSecond = 50
	}
	if opts.OpsBurst <= 0 {
		opts.OpsBurst = 1
	}

	runner, err := batch.NewRunner(opts.ConcurrencyLimit, opts.OpsPerSecond, opts.OpsBurst)
	if err != nil {
		return nil, err
	}

	return &Manager{
		sys:       sys,
		opts:      opts,
		log:       log.WithComponent("routing"),
		metrics:   metrics.NewMetrics(),
		runner:    runner,
		wanMetric: WanDefaultMetric,
		clients:   newClientSet(),
	}, nil
}

// Close releases the worker pool.
func (m *Manager) Close() {
	m.runner.Release()
}

// ComputeWanRoute replaces the WAN descriptor from observed addressing.
// It reports whether anything changed.
func (m *Manager) ComputeWanRoute(obs network.Addressing) (Descriptor, bool) {
	d := fromAddressing(obs, m.wanMetric)
	changed := d.Fingerprint() != m.wan.Fingerprint()
	m.wan = d
	if changed {
		m.metrics.RecordRefresh()
	}
	return d, changed
}

// ComputeLteRoute replaces the LTE descriptor from observed addressing.
func (m *Manager) ComputeLteRoute(obs network.Addressing) (Descriptor, bool) {
	d := fromAddressing(obs, LteDefaultMetric)
	changed := d.Fingerprint() != m.lte.Fingerprint()
	m.lte = d
	if changed {
		m.metrics.RecordRefresh()
	}
	return d, changed
}

func (m *Manager) Wan() Descriptor { return m.wan }
func (m *Manager) Lte() Descriptor { return m.lte }

// Degraded reports whether the WAN default route is currently demoted.
func (m *Manager) Degraded() bool {
	return m.wanMetric == WanL3FailMetric
}

// Routes returns the known uplink descriptors.
func (m *Manager) Routes() []Descriptor {
	var out []Descriptor
	for _, d := range []Descriptor{m.wan, m.lte} {
		if d.Valid() {
			out = append(out, d)
		}
	}
	return out
}

func (m *Manager) Metrics() metrics.Snapshot {
	return m.metrics.Snapshot()
}

// ClientRoutes returns how many client rules are installed.
func (m *Manager) ClientRoutes() int {
	return m.clients.len()
}

// ApplyLteRoute makes LTE the preferred uplink: LTE default at LteDefaultMetric,
// WAN default demoted to WanL3FailMetric.
func (m *Manager) ApplyLteRoute() error {
	if !m.lte.Valid() {
		return &RouteError{Type: ErrInvalidRoute, Action: "apply-lte", Cause: errors.New("lte uplink has no interface")}
	}
	if err := m.installDefault(m.lte, LteDefaultMetric, true); err != nil {
		return fmt.Errorf("failed to install lte default route: %w", err)
	}
	if err := m.setWanMetric(WanL3FailMetric); err != nil {
		return fmt.Errorf("failed to demote wan default route: %w", err)
	}
	return nil
}

// ApplyWanRoute installs the WAN default at WanDefaultMetric.
func (m *Manager) ApplyWanRoute() error {
	if !m.wan.Valid() {
		return &RouteError{Type: ErrInvalidRoute, Action: "apply-wan", Cause: errors.New("wan uplink has no interface")}
	}
	if err := m.setWanMetric(WanDefaultMetric); err != nil {
		return fmt.Errorf("failed to install wan default route: %w", err)
	}
	return nil
}

// RestoreDefaultWan puts the WAN default back at WanDefaultMetric. The LTE
// route keeps its baseline metric, so WAN wins again.
func (m *Manager) RestoreDefaultWan() error {
	if err := m.setWanMetric(WanDefaultMetric); err != nil {
		return fmt.Errorf("failed to restore wan default route: %w", err)
	}
	return nil
}

// SetLteRouteMetric installs the baseline LTE default route.
func (m *Manager) SetLteRouteMetric() error {
	if !m.lte.Valid() {
		return nil
	}
	if err := m.installDefault(m.lte, LteDefaultMetric, true); err != nil {
		return fmt.Errorf("failed to set lte route metric: %w", err)
	}
	return nil
}

func (m *Manager) setWanMetric(metric int) error {
	if m.wan.Valid() {
		if err := m.installDefault(m.wan, metric, false); err != nil {
			return err
		}
		d := m.wan
		d.Metric = metric
		m.wan = d
	}
	m.wanMetric = metric
	return nil
}

func defaultDst(ipv4 bool) *net.IPNet {
	if ipv4 {
		return &net.IPNet{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)}
	}
	return &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}
}

func (m *Manager) defaults(ifName string, ipv4 bool, table int) ([]Route, error) {
	routes, err := m.sys.RouteList(ifName, table)
	if err != nil {
		return nil, err
	}
	var out []Route
	for _, r := range routes {
		if r.IsDefault() && r.IPv4() == ipv4 {
			out = append(out, r)
		}
	}
	return out, nil
}

// installDefault deletes any default route of the same family on the
// interface and adds one at metric. Without a gateway, an existing route's
// gateway is reused; direct allows a link-scope route when there is none.
func (m *Manager) installDefault(d Descriptor, metric int, direct bool) error {
	existing, err := m.defaults(d.IfName, d.IPv4(), MainTable)
	if err != nil {
		return fmt.Errorf("failed to list routes on %s: %w", d.IfName, err)
	}

	want := Route{Dst: defaultDst(d.IPv4()), Gw: d.Gateway, IfName: d.IfName, Metric: metric, Table: MainTable}
	if want.Gw == nil && len(existing) > 0 {
		want.Gw = existing[0].Gw
	}
	if want.Gw == nil && !direct && len(existing) == 0 {
		return nil
	}
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

func retryable(err error) bool {
	var re *RouteError
	return errors.As(err, &re) && re.IsRetryable()
}

func (m *Manager) retry(fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(m.opts.Attempts),
		retry.Delay(m.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
}

// exec runs one route change. Deleting an absent route is not an error.
func (m *Manager) exec(action string, r Route) error {
	start := time.Now()
	err := m.retry(func() error {
		if action == "add" {
			return m.sys.RouteAdd(r)
		}
		return m.sys.RouteDel(r)
	})
	if action == "delete" && isNotFound(err) {
		err = nil
	}
	elapsed := time.Since(start)
	m.metrics.RecordOperation(elapsed, err == nil)

	if r.Table == MainTable {
		gw := ""
		if r.Gw != nil {
			gw = r.Gw.String()
		}
		m.log.RouteOperation(action, "default", gw, r.IfName, r.Metric, elapsed.Milliseconds(), err == nil)
	}
	return err
}

// execRule runs one rule change. Adding a present rule or deleting an absent one succeeds.
func (m *Manager) execRule(action string, r Rule) error {
	start := time.Now()
	err := m.retry(func() error {
		if action == "add" {
			return m.sys.RuleAdd(r)
		}
		return m.sys.RuleDel(r)
	})
	var re *RouteError
	if errors.As(err, &re) && ((action == "add" && re.Type == ErrExists) || (action == "delete" && re.Type == ErrNotFound)) {
		err = nil
	}
	m.metrics.RecordOperation(time.Since(start), err == nil)
	return err
}
