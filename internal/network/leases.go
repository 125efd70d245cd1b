package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wesleywu/lte-failover/internal/clients"
	"github.com/wesleywu/lte-failover/internal/logger"
)

// LeaseEvent is a DHCP lease appearing or going away.
type LeaseEvent struct {
	Removed bool
	Lease   clients.Lease
}

// ParseLeases reads a dnsmasq lease file:
//
//	<expiry> <mac> <ip> <hostname|*> <client-id|*>
//
// Duid lines and short lines are skipped.
func ParseLeases(r io.Reader) ([]clients.Lease, error) {
	var leases []clients.Lease
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "duid" {
			continue
		}
		name := fields[3]
		if name == "*" {
			name = ""
		}
		leases = append(leases, clients.Lease{Name: name, Address: fields[2], MAC: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leases: %w", err)
	}
	return leases, nil
}

// diffLeases returns the events turning prev into cur, removals first.
func diffLeases(prev, cur map[string]clients.Lease) []LeaseEvent {
	var events []LeaseEvent
	for addr, lease := range prev {
		if _, ok := cur[addr]; !ok {
			events = append(events, LeaseEvent{Removed: true, Lease: lease})
		}
	}
	for addr, lease := range cur {
		if old, ok := prev[addr]; !ok || old != lease {
			events = append(events, LeaseEvent{Lease: lease})
		}
	}
	return events
}

// LeaseWatcher follows a lease file and reports lease changes.
type LeaseWatcher struct {
	path    string
	log     *logger.Logger
	events  chan LeaseEvent
	current map[string]clients.Lease
	settle  time.Duration
}

func NewLeaseWatcher(path string, log *logger.Logger) *LeaseWatcher {
	return &LeaseWatcher{
		path:    path,
		log:     log.WithComponent("leases"),
		events:  make(chan LeaseEvent, 256),
		current: make(map[string]clients.Lease),
		settle:  150 * time.Millisecond,
	}
}

func (w *LeaseWatcher) Events() <-chan LeaseEvent {
	return w.events
}

// Start emits the leases already in the file, then follows changes until ctx ends.
func (w *LeaseWatcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create lease watcher: %w", err)
	}
	// dnsmasq replaces the file, so watch the directory
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	go func() {
		defer close(w.events)
		defer fw.Close()

		w.reload(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					time.Sleep(w.settle)
					w.reload(ctx)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.log.Warn("lease watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (w *LeaseWatcher) reload(ctx context.Context) {
	next := make(map[string]clients.Lease)

	f, err := os.Open(w.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// no file means no leases
	case err != nil:
		w.log.Warn("failed to open lease file", "path", w.path, "error", err)
		return
	default:
		leases, err := ParseLeases(f)
		f.Close()
		if err != nil {
			w.log.Warn("failed to parse lease file", "path", w.path, "error", err)
			return
		}
		for _, l := range leases {
			next[l.Address] = l
		}
	}

	events := diffLeases(w.current, next)
	w.current = next
	for _, ev := range events {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
	if len(events) > 0 {
		w.log.Debug("lease file reloaded", "leases", len(next), "changes", len(events))
	}
}
