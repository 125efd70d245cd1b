// Package modem drives the LTE modem through external helper commands.
package modem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

// ErrModemInit marks a failed modem bring-up.
var ErrModemInit = errors.New("modem init failed")

// Snapshot is the signal and registration state reported by the modem.
type Snapshot struct {
	IMEI         string    `json:"imei"`
	IMSI         string    `json:"imsi"`
	ICCID        string    `json:"iccid"`
	Operator     string    `json:"operator"`
	Registration string    `json:"registration"`
	RSSI         int       `json:"rssi"`
	RSRP         int       `json:"rsrp"`
	RSRQ         int       `json:"rsrq"`
	SINR         int       `json:"sinr"`
	Band         string    `json:"band"`
	CellID       string    `json:"cell_id"`
	SimSlot      uint32    `json:"sim_slot"`
	DNS1         string    `json:"dns1,omitempty"`
	DNS2         string    `json:"dns2,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Driver brings the modem up and reads its state.
type Driver interface {
	Init(ctx context.Context, p config.Policy) bool
	Snapshot(ctx context.Context) (Snapshot, error)
	Reset(ctx context.Context) error
}

// CommandDriver runs configured helper commands. The init command gets the
// APN and SIM slot through the environment and runs in its own process group.
type CommandDriver struct {
	initCmd   []string
	statusCmd []string
	resetCmd  []string
	timeout   time.Duration
	log       *logger.Logger
}

func NewCommandDriver(cfg *config.Config, log *logger.Logger) *CommandDriver {
	return &CommandDriver{
		initCmd:   cfg.ModemInitCommand,
		statusCmd: cfg.ModemStatusCommand,
		resetCmd:  cfg.ModemResetCommand,
		timeout:   cfg.ModemInitTimeout,
		log:       log.WithComponent("modem"),
	}
}

func (d *CommandDriver) Init(ctx context.Context, p config.Policy) bool {
	if len(d.initCmd) == 0 {
		d.log.Warn("no modem init command configured")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	env := []string{
		"LTEM_IFNAME=" + p.IfName,
		"LTEM_APN=" + p.APN,
		"LTEM_SIM_SLOT=" + strconv.FormatUint(uint64(p.ActiveSimSlot), 10),
	}
	out, err := run(ctx, d.initCmd, env)
	if err != nil {
		d.log.Warn("modem init command failed", "error", err, "output", string(bytes.TrimSpace(out)))
		return false
	}
	return true
}

func (d *CommandDriver) Snapshot(ctx context.Context) (Snapshot, error) {
	if len(d.statusCmd) == 0 {
		return Snapshot{}, errors.New("no modem status command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := run(ctx, d.statusCmd, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read modem status: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(out, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse modem status: %w", err)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	return snap, nil
}

func (d *CommandDriver) Reset(ctx context.Context) error {
	if len(d.resetCmd) == 0 {
		return errors.New("no modem reset command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if out, err := run(ctx, d.resetCmd, nil); err != nil {
		return fmt.Errorf("failed to reset modem: %w: %s", err, bytes.TrimSpace(out))
	}
	d.log.Info("modem reset requested")
	return nil
}

// run executes argv in a new process group. Cancelling ctx kills the whole
// group and the child is always waited for.
func run(ctx context.Context, argv []string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(cmd.Environ(), env...)
	setProcessGroup(cmd)
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return out.Bytes(), fmt.Errorf("%s: %w", argv[0], ctx.Err())
	}
	return out.Bytes(), err
}
