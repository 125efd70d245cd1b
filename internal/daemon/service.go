package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/wesleywu/lte-failover/internal/clients"
	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/dns"
	"github.com/wesleywu/lte-failover/internal/failover"
	"github.com/wesleywu/lte-failover/internal/logger"
	"github.com/wesleywu/lte-failover/internal/modem"
	"github.com/wesleywu/lte-failover/internal/network"
	"github.com/wesleywu/lte-failover/internal/report"
	"github.com/wesleywu/lte-failover/internal/routing"
	"github.com/wesleywu/lte-failover/internal/store"
)

// LinkSource reports addressing changes of the watched uplinks.
type LinkSource interface {
	Watch(ifNames ...string)
	Events() <-chan network.LinkEvent
	Start(ctx context.Context) error
}

// LeaseSource reports DHCP lease changes.
type LeaseSource interface {
	Events() <-chan network.LeaseEvent
	Start(ctx context.Context) error
}

// Deps are the collaborators of the service. Nil fields get the production
// implementation.
type Deps struct {
	System    routing.System
	Store     store.Store
	Driver    modem.Driver
	Links     LinkSource
	Leases    LeaseSource
	Transport report.Transport
}

const shutdownTimeout = 30 * time.Second

// Service is the reactor. One goroutine runs Run and owns every piece of
// failover state.
type Service struct {
	cfg *config.Config
	log *logger.Logger

	store    store.Store
	links    LinkSource
	leases   LeaseSource
	routes   *routing.Manager
	resolver *dns.Switcher
	modem    *modem.Supervisor
	table    *clients.Table
	ctrl     *failover.Controller
	reporter *report.Reporter

	lteIfName  string
	lteDNS     []net.IP
	stateDirty bool
	now        func() time.Time
}

func NewService(cfg *config.Config, deps Deps, log *logger.Logger) (*Service, error) {
	var err error
	if deps.System == nil {
		if deps.System, err = routing.NewSystem(); err != nil {
			return nil, fmt.Errorf("failed to open routing backend: %w", err)
		}
	}
	if deps.Store == nil {
		deps.Store = store.NewFileStore(cfg, log)
	}
	if deps.Driver == nil {
		deps.Driver = modem.NewCommandDriver(cfg, log)
	}
	if deps.Links == nil {
		deps.Links = network.NewMonitor(cfg.EvalInterval, log)
	}
	if deps.Leases == nil {
		deps.Leases = network.NewLeaseWatcher(cfg.LeaseFile, log)
	}

	s := &Service{
		cfg:    cfg,
		log:    log.WithComponent("service").WithFields("wan_interface", cfg.WanIfName),
		store:  deps.Store,
		links:  deps.Links,
		leases: deps.Leases,
		table:  clients.New(),
		now:    time.Now,
	}

	s.routes, err = routing.NewManager(deps.System, routing.OptionsFromConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create route manager: %w", err)
	}
	s.resolver = dns.NewSwitcher(cfg, log)
	s.modem = modem.NewSupervisor(deps.Driver, cfg, log)
	s.ctrl = failover.NewController(cfg, s.routes, s.resolver, s.modem, s.table, log)

	s.reporter, err = report.NewReporter(cfg, s.ctrl, s.routes, s.modem, s.table, s.store, deps.Transport, log)
	if err != nil {
		s.routes.Close()
		return nil, fmt.Errorf("failed to create reporter: %w", err)
	}

	for _, addr := range cfg.LteDNS {
		if ip := net.ParseIP(addr); ip != nil {
			s.lteDNS = append(s.lteDNS, ip)
		}
	}
	return s, nil
}

// Controller exposes the failover controller. Only safe to use once Run has returned.
func (s *Service) Controller() *failover.Controller {
	return s.ctrl
}

// Run starts every source and runs the reactor until ctx is cancelled.
// On return the host is back on WAN.
func (s *Service) Run(ctx context.Context) error {
	s.log.ServiceStart(version, fmt.Sprintf("%d", os.Getpid()))

	if err := s.prepare(ctx); err != nil {
		return err
	}

	evalTicker := time.NewTicker(s.cfg.EvalInterval)
	defer evalTicker.Stop()
	stateTicker := time.NewTicker(s.cfg.StateInterval)
	defer stateTicker.Stop()
	reportPeriod := s.ctrl.Policy().ReportPeriod()
	reportTicker := time.NewTicker(reportPeriod)
	defer reportTicker.Stop()

	links := s.links.Events()
	leases := s.leases.Events()
	policies := s.store.Subscribe()

	s.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return s.shutdown()

		case <-evalTicker.C:
			s.evaluate(ctx)

		case now := <-stateTicker.C:
			s.publishState(now)

		case now := <-reportTicker.C:
			s.reporter.Publish(ctx, s.reporter.BuildReport(now))

		case ev, ok := <-links:
			if !ok {
				links = nil
				continue
			}
			s.onLink(ev)
			s.evaluate(ctx)

		case ev, ok := <-leases:
			if !ok {
				leases = nil
				continue
			}
			s.onLease(ctx, ev)

		case p, ok := <-policies:
			if !ok {
				policies = nil
				continue
			}
			s.applyPolicy(p)
			if period := p.ReportPeriod(); period != reportPeriod {
				reportPeriod = period
				reportTicker.Reset(period)
			}
			s.evaluate(ctx)

		case res := <-s.ctrl.ModemDone():
			s.onModem(res)
			s.evaluate(ctx)
		}
	}
}

// prepare clears state left by an earlier run and starts the event sources.
func (s *Service) prepare(ctx context.Context) error {
	if err := s.resolver.RestoreResolvConf(); err != nil {
		s.log.Warn("failed to restore resolvers left by a previous run", "error", err)
	}
	if err := s.resolver.SaveDefault(); err != nil {
		s.log.Warn("failed to save default resolvers", "error", err)
	}
	if err := s.routes.Cleanup(ctx); err != nil {
		s.log.Warn("startup route cleanup incomplete", "error", err)
	}

	s.links.Watch(s.cfg.WanIfName)
	p, err := s.store.Policy()
	if err != nil && !errors.Is(err, config.ErrConfigInvalid) {
		s.log.Warn("failed to read policy, manager disabled", "error", err)
	}
	s.applyPolicy(p)

	if starter, ok := s.store.(interface{ Start(context.Context) error }); ok {
		if err := starter.Start(ctx); err != nil {
			s.log.Warn("policy changes will not be followed", "error", err)
		}
	}
	if err := s.links.Start(ctx); err != nil {
		return fmt.Errorf("failed to start link monitor: %w", err)
	}
	if err := s.leases.Start(ctx); err != nil {
		s.log.Warn("lease file will not be followed", "path", s.cfg.LeaseFile, "error", err)
	}
	return nil
}

func (s *Service) applyPolicy(p config.Policy) {
	if err := s.ctrl.SetPolicy(p); err != nil {
		s.stateDirty = true
		return
	}
	if p.IfName != s.lteIfName {
		s.lteIfName = p.IfName
		s.links.Watch(s.cfg.WanIfName, s.lteIfName)
	}
	s.stateDirty = true
}

func (s *Service) evaluate(ctx context.Context) {
	before := s.ctrl.Status()
	if err := s.ctrl.Evaluate(ctx, s.now()); err != nil {
		s.log.Error("evaluation failed, retrying next tick", "error", err)
	}
	after := s.ctrl.Status()
	if after.Target != before.Target || after.Episode != before.Episode || after.Wan != before.Wan || after.Lte != before.Lte {
		s.stateDirty = true
	}
	if s.stateDirty {
		s.publishState(s.now())
	}
}

func (s *Service) onLink(ev network.LinkEvent) {
	switch ev.Interface {
	case s.cfg.WanIfName:
		s.ctrl.ObserveWan(ev.Addressing)
	case s.lteIfName:
		obs := ev.Addressing
		if len(obs.DNS) == 0 {
			obs = obs.WithDNS(s.lteDNS...)
		}
		s.ctrl.ObserveLte(obs)
	default:
		return
	}
	s.stateDirty = true
}

func (s *Service) onLease(ctx context.Context, ev network.LeaseEvent) {
	var err error
	if ev.Removed {
		err = s.ctrl.OnRelease(ctx, ev.Lease)
	} else {
		err = s.ctrl.OnLease(ctx, ev.Lease)
	}
	if err != nil {
		s.log.Warn("lease not applied", "address", ev.Lease.Address, "removed", ev.Removed, "error", err)
	}
	s.stateDirty = true
}

// onModem records a bring-up outcome and picks up the resolvers the modem
// reported with it.
func (s *Service) onModem(res modem.Result) {
	s.ctrl.OnModemReady(s.now(), res)
	s.stateDirty = true
	if !res.OK || !s.modem.Ready() {
		return
	}
	if res.Snapshot == nil {
		s.log.Warn("modem came up without a status snapshot")
		return
	}

	var servers []net.IP
	for _, addr := range []string{res.Snapshot.DNS1, res.Snapshot.DNS2} {
		if ip := net.ParseIP(addr); ip != nil {
			servers = append(servers, ip)
		}
	}
	if len(servers) == 0 {
		return
	}
	s.lteDNS = servers
	if obs, ok := s.currentLte(); ok {
		s.ctrl.ObserveLte(obs.WithDNS(servers...))
	}
}

func (s *Service) currentLte() (network.Addressing, bool) {
	type current interface {
		Current(ifName string) (network.Addressing, bool)
	}
	if c, ok := s.links.(current); ok {
		return c.Current(s.lteIfName)
	}
	return network.Addressing{}, false
}

func (s *Service) publishState(now time.Time) {
	if err := s.reporter.PublishState(now); err != nil {
		s.stateDirty = true
		s.log.Warn("failed to write lte state", "error", err)
		return
	}
	s.stateDirty = false
}

func (s *Service) shutdown() error {
	s.log.ServiceStop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.ctrl.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore wan: %w", err))
	}
	if err := s.routes.Cleanup(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clean up routes: %w", err))
	}
	s.publishState(s.now())
	if err := s.reporter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close telemetry transport: %w", err))
	}
	s.routes.Close()
	return errors.Join(errs...)
}
