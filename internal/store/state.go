package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wesleywu/lte-failover/internal/clients"
)

// ErrStoreWrite marks a failed state write. The caller keeps its data dirty
// and retries on the next cadence.
var ErrStoreWrite = errors.New("store write failed")

// Uplink is one row of the uplink table.
type Uplink struct {
	IfName   string   `json:"if_name"`
	Type     string   `json:"type"`
	Enabled  bool     `json:"enabled"`
	Active   bool     `json:"active"`
	Address  string   `json:"address,omitempty"`
	Subnet   string   `json:"subnet,omitempty"`
	Netmask  string   `json:"netmask,omitempty"`
	Gateway  string   `json:"gateway,omitempty"`
	Metric   int      `json:"metric"`
	DNS      []string `json:"dns,omitempty"`
	Priority int      `json:"priority"`
}

// State is the LTE failover state published to the store.
type State struct {
	UpdatedAt time.Time `json:"updated_at"`
	Node      NodeInfo  `json:"node"`

	Target         string    `json:"target"`
	WanState       string    `json:"wan_state"`
	LteState       string    `json:"lte_state"`
	FailoverActive bool      `json:"lte_failover_active"`
	FailoverStart  time.Time `json:"lte_failover_start"`
	FailoverEnd    time.Time `json:"lte_failover_end"`
	FailoverCount  uint32    `json:"lte_failover_count"`
	DNSDegraded    bool      `json:"dns_degraded"`
	WanDemoted     bool      `json:"wan_demoted"`
	ModemReady     bool      `json:"modem_ready"`

	Uplinks []Uplink        `json:"uplinks"`
	Clients []clients.Entry `json:"clients"`
}

// LoadState reads a state file. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &st, nil
}

// saveState writes st atomically through a temp file in the same directory.
func saveState(path string, st State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create state directory: %v", ErrStoreWrite, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal state: %v", ErrStoreWrite, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}
