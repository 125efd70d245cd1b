// Package failover decides which uplink carries traffic and enacts the decision.
package failover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wesleywu/lte-failover/internal/clients"
	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/dns"
	"github.com/wesleywu/lte-failover/internal/logger"
	"github.com/wesleywu/lte-failover/internal/modem"
	"github.com/wesleywu/lte-failover/internal/network"
	"github.com/wesleywu/lte-failover/internal/routing"
)

// Routes is the route manager as used by the controller.
type Routes interface {
	ComputeWanRoute(obs network.Addressing) (routing.Descriptor, bool)
	ComputeLteRoute(obs network.Addressing) (routing.Descriptor, bool)
	Lte() routing.Descriptor
	ApplyLteRoute() error
	RestoreDefaultWan() error
	SetLteRouteMetric() error
	AddClientRoutes(ctx context.Context, src routing.ClientSource) error
	AddClientRoute(ctx context.Context, ip net.IP) error
	DeleteClientRoute(ctx context.Context, ip net.IP) error
	RestoreClientRoutes(ctx context.Context) error
	Degraded() bool
}

// Resolver is the DNS switcher as used by the controller.
type Resolver interface {
	CheckDNS(ctx context.Context, server net.IP, via dns.Via, hostname string) error
	UpdateResolvConf(servers []net.IP) error
	RestoreResolvConf() error
	Active() dns.Uplink
}

// Modem is the bring-up supervisor as used by the controller.
type Modem interface {
	Ready() bool
	Running() bool
	Done() <-chan modem.Result
	Ensure(ctx context.Context, now time.Time, p config.Policy) bool
	Complete(now time.Time, res modem.Result)
	Invalidate()
	Cancel()
}

// Status is a read-only view of the controller.
type Status struct {
	Target         Target        `json:"target"`
	Wan            WanState      `json:"wan_state"`
	Lte            LteState      `json:"lte_state"`
	Episode        Episode       `json:"episode"`
	Degraded       bool          `json:"dns_degraded"`
	WanDemoted     bool          `json:"wan_demoted"`
	ModemReady     bool          `json:"modem_ready"`
	ManagerEnabled bool          `json:"manager_enabled"`
	Policy         config.Policy `json:"policy"`
	Clients        int           `json:"clients"`
}

// Controller owns the failover state. All methods must be called from the
// reactor goroutine.
type Controller struct {
	probeHost string
	log       *logger.Logger

	routes  Routes
	dns     Resolver
	modem   Modem
	clients *clients.Table

	policy      config.Policy
	policyValid bool

	wan    WanState
	lte    LteState
	target Target

	episode  Episode
	degraded bool

	// pending work left by a partial transition, retried on the next evaluation
	reapply      bool
	clientsDirty bool
	dnsDirty     bool
}

func NewController(cfg *config.Config, routes Routes, resolver Resolver, m Modem, table *clients.Table, log *logger.Logger) *Controller {
	return &Controller{
		probeHost: cfg.DNSProbeHost,
		log:       log.WithComponent("failover"),
		routes:    routes,
		dns:       resolver,
		modem:     m,
		clients:   table,
		target:    TargetWAN,
	}
}

// SetPolicy replaces the policy snapshot. An invalid snapshot disables the
// manager until a valid one arrives.
func (c *Controller) SetPolicy(p config.Policy) error {
	if err := p.Validate(); err != nil {
		c.policyValid = false
		c.log.Error("policy rejected, manager disabled", "error", err)
		return err
	}

	prev := c.policy
	c.policy = p
	c.policyValid = true
	if prev.APN != p.APN || prev.ActiveSimSlot != p.ActiveSimSlot || prev.IfName != p.IfName {
		c.modem.Invalidate()
	}
	c.log.ConfigLoaded("store", p.IfName, p.ManagerEnable)
	return nil
}

func (c *Controller) Policy() config.Policy {
	return c.policy
}

func (c *Controller) SetWanState(s WanState) {
	c.wan = s
}

func (c *Controller) SetLteState(s LteState) {
	if c.lte == LteUp && s != LteUp && c.policy.ModemEnable {
		c.modem.Invalidate()
	}
	c.lte = s
}

// ObserveWan refreshes the WAN descriptor and state from observed addressing.
func (c *Controller) ObserveWan(obs network.Addressing) {
	_, changed := c.routes.ComputeWanRoute(obs)
	if changed && c.target == TargetLTE {
		c.reapply = true
	}
	if obs.WanUsable() {
		c.SetWanState(WanUp)
	} else {
		c.SetWanState(WanDown)
	}
}

// ObserveLte refreshes the LTE descriptor and state from observed addressing.
// A link coming up gets the baseline LTE route.
func (c *Controller) ObserveLte(obs network.Addressing) {
	d, changed := c.routes.ComputeLteRoute(obs)
	if changed && c.target == TargetLTE {
		c.reapply = true
	}

	if !obs.LteUsable() {
		c.SetLteState(LteDown)
		return
	}
	if (c.lte != LteUp || changed) && c.policy.FamilyEnabled(d.IPv4()) {
		if err := c.routes.SetLteRouteMetric(); err != nil {
			c.log.Warn("failed to install baseline lte route", "error", err)
		}
	}
	c.SetLteState(LteUp)
}

// effectiveLte reports Init while a bring-up is running.
func (c *Controller) effectiveLte() LteState {
	if c.modem.Running() {
		return LteInit
	}
	return c.lte
}

func (c *Controller) enabled() bool {
	return c.policyValid && c.policy.ManagerEnable
}

// lteReady reports whether traffic may be moved to LTE. The LTE address
// family must be enabled by the policy.
func (c *Controller) lteReady() bool {
	if c.effectiveLte() != LteUp {
		return false
	}
	if !c.policy.FamilyEnabled(c.routes.Lte().IPv4()) {
		return false
	}
	return !c.policy.ModemEnable || c.modem.Ready()
}

// Evaluate runs the decision and enacts any transition. With unchanged
// inputs it issues no route or DNS operations.
func (c *Controller) Evaluate(ctx context.Context, now time.Time) error {
	if !c.enabled() {
		if c.target == TargetLTE {
			return c.toWan(ctx, now, "manager disabled")
		}
		return c.reconcile(ctx)
	}

	if c.policy.ModemEnable && c.policy.LteFailoverEnable {
		c.modem.Ensure(ctx, now, c.policy)
	}

	want := DecideTarget(c.wan, c.effectiveLte(), c.policy)
	if want == TargetLTE && !c.lteReady() {
		if c.target == TargetLTE {
			return c.toWan(ctx, now, "lte unavailable")
		}
		return c.reconcile(ctx)
	}

	if want == c.target {
		return c.reconcile(ctx)
	}

	if want == TargetLTE {
		reason := "wan down"
		if c.policy.ForceUseLte {
			reason = "forced"
		}
		return c.toLte(ctx, now, reason)
	}
	return c.toWan(ctx, now, "wan restored")
}

func (c *Controller) toLte(ctx context.Context, now time.Time, reason string) error {
	lte := c.routes.Lte()
	servers := lte.DNS()

	c.degraded = false
	if len(servers) == 0 {
		c.degraded = true
		c.log.Warn("lte uplink has no resolvers")
	} else if err := c.dns.CheckDNS(ctx, servers[0], dns.Via{IfName: lte.IfName, Address: lte.Address}, c.probeHost); err != nil {
		c.degraded = true
		c.log.Warn("lte resolver probe failed, switching anyway", "error", err)
	}

	if err := c.routes.ApplyLteRoute(); err != nil {
		return fmt.Errorf("failed to switch to lte: %w", err)
	}
	c.target = TargetLTE
	c.reapply = false

	c.clientsDirty = false
	if err := c.routes.AddClientRoutes(ctx, c.clients); err != nil {
		c.clientsDirty = true
		c.log.Warn("failed to add client routes", "error", err)
	}

	c.dnsDirty = false
	if len(servers) > 0 {
		if err := c.dns.UpdateResolvConf(servers); err != nil {
			c.dnsDirty = true
			c.log.Warn("failed to switch resolvers", "error", err)
		}
	}

	c.episode.begin(now)
	c.log.Transition(TargetWAN.String(), TargetLTE.String(), reason, c.episode.Count)
	return nil
}

func (c *Controller) toWan(ctx context.Context, now time.Time, reason string) error {
	if err := c.routes.RestoreDefaultWan(); err != nil {
		return fmt.Errorf("failed to switch to wan: %w", err)
	}
	c.target = TargetWAN
	c.reapply = false
	c.degraded = false

	c.clientsDirty = false
	if err := c.routes.RestoreClientRoutes(ctx); err != nil {
		c.clientsDirty = true
		c.log.Warn("failed to remove client routes", "error", err)
	}

	c.dnsDirty = false
	if err := c.dns.RestoreResolvConf(); err != nil {
		c.dnsDirty = true
		c.log.Warn("failed to restore resolvers", "error", err)
	}

	c.episode.finish(now)
	c.log.Transition(TargetLTE.String(), TargetWAN.String(), reason, c.episode.Count)
	return nil
}

// reconcile retries work left by a partial transition and follows
// descriptor changes while LTE is active.
func (c *Controller) reconcile(ctx context.Context) error {
	if c.target == TargetLTE && c.reapply {
		if err := c.routes.ApplyLteRoute(); err != nil {
			return fmt.Errorf("failed to refresh lte route: %w", err)
		}
		c.reapply = false
		c.clientsDirty = true
		c.dnsDirty = true
	}

	if c.clientsDirty {
		var err error
		if c.target == TargetLTE {
			err = c.routes.AddClientRoutes(ctx, c.clients)
		} else {
			err = c.routes.RestoreClientRoutes(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to reconcile client routes: %w", err)
		}
		c.clientsDirty = false
	}

	if c.dnsDirty {
		var err error
		if servers := c.routes.Lte().DNS(); c.target == TargetLTE && len(servers) > 0 {
			err = c.dns.UpdateResolvConf(servers)
		} else if c.target == TargetWAN {
			err = c.dns.RestoreResolvConf()
		}
		if err != nil {
			return fmt.Errorf("failed to reconcile resolvers: %w", err)
		}
		c.dnsDirty = false
	}
	return nil
}

// OnLease records a lease and routes the client through LTE when LTE is active.
func (c *Controller) OnLease(ctx context.Context, lease clients.Lease) error {
	entry, _, err := c.clients.Update(lease)
	if err != nil {
		return fmt.Errorf("failed to record lease: %w", err)
	}
	if c.target != TargetLTE {
		return nil
	}
	if err := c.routes.AddClientRoute(ctx, entry.Address); err != nil {
		c.clientsDirty = true
		return fmt.Errorf("failed to add client route for %s: %w", entry.Address, err)
	}
	return nil
}

// OnRelease forgets a lease and removes the client's route.
func (c *Controller) OnRelease(ctx context.Context, lease clients.Lease) error {
	entry, ok := c.clients.Delete(lease)
	if !ok {
		return nil
	}
	if err := c.routes.DeleteClientRoute(ctx, entry.Address); err != nil {
		return fmt.Errorf("failed to delete client route for %s: %w", entry.Address, err)
	}
	return nil
}

// ModemDone delivers the outcome of a running bring-up; nil when idle.
func (c *Controller) ModemDone() <-chan modem.Result {
	return c.modem.Done()
}

// OnModemReady consumes a bring-up outcome.
func (c *Controller) OnModemReady(now time.Time, res modem.Result) {
	c.modem.Complete(now, res)
	if !res.OK && c.lte != LteUp {
		c.lte = LteDown
	}
}

func (c *Controller) Target() Target   { return c.target }
func (c *Controller) Episode() Episode { return c.episode }

// Degraded reports that the LTE resolvers failed their probe at the last switch.
func (c *Controller) Degraded() bool { return c.degraded }

func (c *Controller) Status() Status {
	return Status{
		Target:         c.target,
		Wan:            c.wan,
		Lte:            c.effectiveLte(),
		Episode:        c.episode,
		Degraded:       c.degraded,
		WanDemoted:     c.routes.Degraded(),
		ModemReady:     c.modem.Ready(),
		ManagerEnabled: c.enabled(),
		Policy:         c.policy,
		Clients:        c.clients.Len(),
	}
}

// Shutdown cancels any bring-up and leaves the host on WAN with no client routes.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.modem.Cancel()

	if c.target == TargetLTE {
		return c.toWan(ctx, time.Now(), "shutdown")
	}

	var errs []error
	if err := c.routes.RestoreClientRoutes(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.dns.Active() == dns.UplinkLTE {
		if err := c.dns.RestoreResolvConf(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
