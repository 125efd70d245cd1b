// Package report publishes failover telemetry and writes the LTE state to the store.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/wesleywu/lte-failover/internal/clients"
	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/failover"
	"github.com/wesleywu/lte-failover/internal/logger"
	"github.com/wesleywu/lte-failover/internal/modem"
	"github.com/wesleywu/lte-failover/internal/routing"
	"github.com/wesleywu/lte-failover/internal/routing/metrics"
	"github.com/wesleywu/lte-failover/internal/store"
	"github.com/wesleywu/lte-failover/internal/utils"
)

// StatusSource is the failover controller as seen by the reporter.
type StatusSource interface {
	Status() failover.Status
}

// RouteSource is the route manager as seen by the reporter.
type RouteSource interface {
	Wan() routing.Descriptor
	Lte() routing.Descriptor
	Metrics() metrics.Snapshot
	ClientRoutes() int
}

// ModemSource reads the modem state.
type ModemSource interface {
	Snapshot(ctx context.Context) (modem.Snapshot, error)
}

// Report is one telemetry message.
type Report struct {
	Timestamp       time.Time          `json:"timestamp"`
	Node            store.NodeInfo     `json:"node"`
	PID             int                `json:"pid"`
	InitTime        time.Time          `json:"init_time"`
	SystemUptime    int64              `json:"system_uptime"`
	Status          failover.Status    `json:"status"`
	FailoverSeconds int64              `json:"lte_failover_duration"`
	Wan             routing.Descriptor `json:"wan"`
	Lte             routing.Descriptor `json:"lte"`
	RouteMetrics    metrics.Snapshot   `json:"route_metrics"`
	ClientRoutes    int                `json:"client_routes"`
	Modem           *modem.Snapshot    `json:"modem,omitempty"`
}

const publishTimeout = 15 * time.Second

// Reporter builds reports on the reactor goroutine and publishes them on a
// worker pool.
type Reporter struct {
	prefix   string
	initTime time.Time
	pid      int
	log      *logger.Logger

	status    StatusSource
	routes    RouteSource
	modem     ModemSource
	table     *clients.Table
	st        store.Store
	transport Transport

	pool *ants.Pool
	wg   sync.WaitGroup
}

// NewReporter creates a reporter. transport and m may be nil.
func NewReporter(cfg *config.Config, status StatusSource, routes RouteSource, m ModemSource,
	table *clients.Table, st store.Store, transport Transport, log *logger.Logger) (*Reporter, error) {
	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create publish pool: %w", err)
	}
	return &Reporter{
		prefix:    cfg.TopicPrefix,
		initTime:  time.Now(),
		pid:       os.Getpid(),
		log:       log.WithComponent("report"),
		status:    status,
		routes:    routes,
		modem:     m,
		table:     table,
		st:        st,
		transport: transport,
		pool:      pool,
	}, nil
}

// Topic returns the telemetry topic for suffix.
func (r *Reporter) Topic(suffix string) string {
	node := r.st.Node()
	return fmt.Sprintf("%s/%s/%s/%s", r.prefix, node.LocationID, node.NodeID, suffix)
}

// BuildReport snapshots controller and route state. Modem fields are filled
// in when the report is published.
func (r *Reporter) BuildReport(now time.Time) Report {
	status := r.status.Status()
	return Report{
		Timestamp:       now,
		Node:            r.st.Node(),
		PID:             r.pid,
		InitTime:        r.initTime,
		SystemUptime:    systemUptime(),
		Status:          status,
		FailoverSeconds: int64(status.Episode.Duration(now) / time.Second),
		Wan:             r.routes.Wan(),
		Lte:             r.routes.Lte(),
		RouteMetrics:    r.routes.Metrics(),
		ClientRoutes:    r.routes.ClientRoutes(),
	}
}

// Publish hands the report to the transport in the background. Failures are
// logged; the next cadence sends a fresh report.
func (r *Reporter) Publish(ctx context.Context, rep Report) {
	if r.transport == nil {
		return
	}

	r.wg.Add(1)
	err := r.pool.Submit(func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := r.send(ctx, rep); err != nil {
			r.log.Warn("failed to publish report", "error", err)
		}
	})
	if err != nil {
		r.wg.Done()
		r.log.Warn("report dropped, previous publish still running", "error", err)
	}
}

func (r *Reporter) send(ctx context.Context, rep Report) error {
	if r.modem != nil && rep.Modem == nil && rep.Status.Policy.ModemEnable {
		snap, err := r.modem.Snapshot(ctx)
		if err != nil {
			r.log.Debug("modem snapshot unavailable", "error", err)
		} else {
			rep.Modem = &snap
			r.dumpModem(snap)
		}
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	topic := r.Topic("info")
	if err := r.transport.Publish(topic, payload); err != nil {
		return err
	}
	r.log.Debug("report published", "topic", topic, "bytes", len(payload))
	r.log.Performance("route-manager", map[string]interface{}{
		"route_operations": rep.RouteMetrics.RouteOperations,
		"failed_ops":       rep.RouteMetrics.FailedOps,
		"average_op_ms":    rep.RouteMetrics.AverageOpTime.Milliseconds(),
		"client_routes":    rep.ClientRoutes,
	})
	return nil
}

func (r *Reporter) dumpModem(s modem.Snapshot) {
	r.log.Debug("modem info",
		"imei", s.IMEI,
		"imsi", s.IMSI,
		"iccid", s.ICCID,
		"operator", s.Operator,
		"registration", s.Registration,
		"rssi", s.RSSI,
		"rsrp", s.RSRP,
		"rsrq", s.RSRQ,
		"sinr", s.SINR,
		"band", s.Band,
		"cell_id", s.CellID,
		"sim_slot", s.SimSlot,
	)
}

// State builds the store view of the current failover state.
func (r *Reporter) State(now time.Time) store.State {
	status := r.status.Status()
	st := store.State{
		UpdatedAt:      now,
		Node:           r.st.Node(),
		Target:         status.Target.String(),
		WanState:       status.Wan.String(),
		LteState:       status.Lte.String(),
		FailoverActive: status.Episode.Active,
		FailoverStart:  status.Episode.Start,
		FailoverEnd:    status.Episode.End,
		FailoverCount:  status.Episode.Count,
		DNSDegraded:    status.Degraded,
		WanDemoted:     status.WanDemoted,
		ModemReady:     status.ModemReady,
		Clients:        r.table.Entries(),
	}

	if wan := r.routes.Wan(); wan.Valid() {
		st.Uplinks = append(st.Uplinks, uplinkRow(wan, "eth", true, status.Target == failover.TargetWAN, 1))
	}
	// the LTE row is disabled whenever the manager or failover is off
	if lte := r.routes.Lte(); lte.Valid() {
		enabled := status.ManagerEnabled && status.Policy.LteFailoverEnable
		st.Uplinks = append(st.Uplinks, uplinkRow(lte, "lte", enabled, status.Target == failover.TargetLTE, 2))
	}
	return st
}

// PublishState writes the LTE state to the store.
func (r *Reporter) PublishState(now time.Time) error {
	if err := r.st.WriteState(r.State(now)); err != nil {
		return fmt.Errorf("failed to publish lte state: %w", err)
	}
	return nil
}

func uplinkRow(d routing.Descriptor, kind string, enabled, active bool, priority int) store.Uplink {
	row := store.Uplink{
		IfName:   d.IfName,
		Type:     kind,
		Enabled:  enabled,
		Active:   active,
		Metric:   d.Metric,
		Priority: priority,
	}
	if d.Address != nil {
		row.Address = d.Address.String()
	}
	if d.Subnet != nil {
		row.Subnet = d.Subnet.String()
	}
	if d.Netmask != nil {
		row.Netmask = utils.MaskString(d.Netmask)
	}
	if d.Gateway != nil {
		row.Gateway = d.Gateway.String()
	}
	for _, ip := range d.DNS() {
		row.DNS = append(row.DNS, ip.String())
	}
	return row
}

// Close waits for an in-flight publish and closes the transport.
func (r *Reporter) Close() error {
	r.wg.Wait()
	r.pool.Release()
	if r.transport != nil {
		return r.transport.Close()
	}
	return nil
}
