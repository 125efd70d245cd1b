// Package store connects the manager to its configuration and state store.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

// NodeInfo identifies the device in telemetry topics.
type NodeInfo struct {
	NodeID     string `json:"node_id" yaml:"node_id"`
	LocationID string `json:"location_id" yaml:"location_id"`
}

// Store supplies policy snapshots and accepts state updates.
type Store interface {
	Policy() (config.Policy, error)
	Subscribe() <-chan config.Policy
	WriteState(st State) error
	Node() NodeInfo
}

// policyDocument is the on-disk layout of the policy file.
type policyDocument struct {
	config.Policy `yaml:",inline"`
	NodeID        string `yaml:"node_id"`
	LocationID    string `yaml:"location_id"`
}

// FileStore keeps the policy in a YAML file and the state in a JSON file.
type FileStore struct {
	policyPath string
	statePath  string
	settle     time.Duration
	log        *logger.Logger

	mu   sync.RWMutex
	node NodeInfo

	updates chan config.Policy
}

func NewFileStore(cfg *config.Config, log *logger.Logger) *FileStore {
	return &FileStore{
		policyPath: cfg.PolicyFile,
		statePath:  cfg.StateFile,
		settle:     150 * time.Millisecond,
		log:        log.WithComponent("store"),
		updates:    make(chan config.Policy, 1),
	}
}

// Policy reads the current policy. A document that fails validation is
// returned together with an error wrapping config.ErrConfigInvalid.
func (s *FileStore) Policy() (config.Policy, error) {
	data, err := os.ReadFile(s.policyPath)
	if err != nil {
		return config.Policy{}, fmt.Errorf("failed to read policy %s: %w", s.policyPath, err)
	}

	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return config.Policy{}, fmt.Errorf("%w: %v", config.ErrConfigInvalid, err)
	}
	s.setNode(doc.NodeID, doc.LocationID)

	if err := doc.Policy.Validate(); err != nil {
		return doc.Policy, err
	}
	return doc.Policy, nil
}

func (s *FileStore) setNode(nodeID, locationID string) {
	if nodeID == "" {
		nodeID, _ = os.Hostname()
	}
	if locationID == "" {
		locationID = "default"
	}
	s.mu.Lock()
	s.node = NodeInfo{NodeID: nodeID, LocationID: locationID}
	s.mu.Unlock()
}

func (s *FileStore) Node() NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node
}

// Subscribe returns the channel carrying policy snapshots after each change
// of the policy file. Only the latest pending snapshot is kept.
func (s *FileStore) Subscribe() <-chan config.Policy {
	return s.updates
}

// WriteState persists st. Failures wrap ErrStoreWrite.
func (s *FileStore) WriteState(st State) error {
	if st.Node == (NodeInfo{}) {
		st.Node = s.Node()
	}
	return saveState(s.statePath, st)
}

// Start follows the policy file until ctx ends.
func (s *FileStore) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(s.policyPath)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.policyPath), err)
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.policyPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					time.Sleep(s.settle)
					s.reload()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				s.log.Warn("policy watcher error", "error", err)
			}
		}
	}()
	return nil
}

// reload publishes the current snapshot. An unreadable document is passed on
// as the zero policy, which disables the manager.
func (s *FileStore) reload() {
	p, err := s.Policy()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		s.log.Warn("policy snapshot invalid", "path", s.policyPath, "error", err)
	}

	// drop a stale pending snapshot
	select {
	case <-s.updates:
	default:
	}
	s.updates <- p
}

var _ Store = (*FileStore)(nil)
