// Package dns switches the host resolver configuration between uplinks.
package dns

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

// Uplink names whose resolver set is live.
type Uplink int

const (
	UplinkWAN Uplink = iota
	UplinkLTE
)

func (u Uplink) String() string {
	switch u {
	case UplinkWAN:
		return "wan"
	case UplinkLTE:
		return "lte"
	default:
		return "unknown"
	}
}

// Switcher owns the resolv.conf file. The system default content is kept in
// a backup file while the LTE resolver set is active.
type Switcher struct {
	path      string
	backup    string
	probeHost string
	timeout   time.Duration
	port      string
	log       *logger.Logger

	active Uplink
	writes int
}

func NewSwitcher(cfg *config.Config, log *logger.Logger) *Switcher {
	return &Switcher{
		path:      cfg.ResolvConf,
		backup:    cfg.ResolvConfBackup,
		probeHost: cfg.DNSProbeHost,
		timeout:   cfg.DNSProbeTimeout,
		port:      "53",
		log:       log.WithComponent("dns"),
		active:    UplinkWAN,
	}
}

// Active reports which uplink's resolver pair is live.
func (s *Switcher) Active() Uplink {
	return s.active
}

// target resolves a symlinked resolv.conf so the rename replaces the real file.
func (s *Switcher) target() string {
	if real, err := filepath.EvalSymlinks(s.path); err == nil {
		return real
	}
	return s.path
}

// SaveDefault records the current resolv.conf as the system default. A
// backup left by an earlier run is kept, since the live file may still hold
// the LTE servers.
func (s *Switcher) SaveDefault() error {
	if _, err := os.Stat(s.backup); err == nil {
		s.log.Info("keeping existing resolver backup", "backup", s.backup)
		return nil
	}

	data, err := os.ReadFile(s.target())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if err := writeAtomic(s.backup, data); err != nil {
		return fmt.Errorf("failed to save resolver backup: %w", err)
	}
	return nil
}

// DefaultServers returns the nameservers of the saved system default,
// falling back to the live file.
func (s *Switcher) DefaultServers() ([]net.IP, error) {
	if ips, err := ReadNameservers(s.backup); err == nil {
		return ips, nil
	}
	return ReadNameservers(s.target())
}

// UpdateResolvConf makes servers the active resolver set.
func (s *Switcher) UpdateResolvConf(servers []net.IP) error {
	if len(servers) == 0 {
		return errors.New("no lte resolvers to install")
	}
	if _, err := os.Stat(s.backup); errors.Is(err, os.ErrNotExist) {
		if err := s.SaveDefault(); err != nil {
			return err
		}
	}

	if err := s.write(renderResolvConf(servers)); err != nil {
		return err
	}
	s.active = UplinkLTE

	names := make([]string, 0, len(servers))
	for _, ip := range servers {
		names = append(names, ip.String())
	}
	s.log.DNSSwitch(s.active.String(), names)
	return nil
}

// RestoreResolvConf reverts to the saved system default and removes the backup.
func (s *Switcher) RestoreResolvConf() error {
	data, err := os.ReadFile(s.backup)
	if errors.Is(err, os.ErrNotExist) {
		s.active = UplinkWAN
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read resolver backup: %w", err)
	}

	if err := s.write(data); err != nil {
		return err
	}
	if err := os.Remove(s.backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to remove resolver backup", "backup", s.backup, "error", err)
	}
	s.active = UplinkWAN

	servers, _ := parseNameservers(bytes.NewReader(data))
	names := make([]string, 0, len(servers))
	for _, ip := range servers {
		names = append(names, ip.String())
	}
	s.log.DNSSwitch(s.active.String(), names)
	return nil
}

// write replaces the live file unless it already holds data.
func (s *Switcher) write(data []byte) error {
	path := s.target()
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, data) {
		return nil
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.writes++
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ltem-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
