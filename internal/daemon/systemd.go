//go:build linux

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	unitName = "ltem"

	// SystemdServiceTemplate is the unit file of the failover manager
	SystemdServiceTemplate = `[Unit]
Description=LTE Failover Manager
After=network-online.target dnsmasq.service
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s daemon --config %s
Restart=always
RestartSec=5
KillMode=mixed
TimeoutStopSec=45
User=root
Group=root
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=multi-user.target
`
	// SystemdServicePath is the path to the unit file
	SystemdServicePath = "/etc/systemd/system/ltem.service"
)

// SystemdService manages the systemd unit
type SystemdService struct {
	execPath   string
	configPath string
	unitPath   string
	systemctl  func(args ...string) ([]byte, error)
}

func NewSystemdService(execPath, configPath string) *SystemdService {
	return &SystemdService{
		execPath:   execPath,
		configPath: configPath,
		unitPath:   SystemdServicePath,
		systemctl: func(args ...string) ([]byte, error) {
			return exec.Command("systemctl", args...).Output()
		},
	}
}

// Unit renders the unit file.
func (s *SystemdService) Unit() string {
	return fmt.Sprintf(SystemdServiceTemplate, s.execPath, s.configPath)
}

func (s *SystemdService) Install() error {
	if err := os.WriteFile(s.unitPath, []byte(s.Unit()), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}
	if _, err := s.systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if _, err := s.systemctl("enable", unitName); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	return nil
}

// Uninstall stops and disables the unit before removing it. Stop and
// disable failures are ignored so a half-installed unit can still be removed.
func (s *SystemdService) Uninstall() error {
	_, _ = s.systemctl("stop", unitName)
	_, _ = s.systemctl("disable", unitName)

	if err := os.Remove(s.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service file: %w", err)
	}
	if _, err := s.systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}

func (s *SystemdService) Start() error {
	_, err := s.systemctl("start", unitName)
	return err
}

func (s *SystemdService) Stop() error {
	_, err := s.systemctl("stop", unitName)
	return err
}

func (s *SystemdService) Status() (string, error) {
	output, err := s.systemctl("is-active", unitName)
	if err != nil {
		return "stopped", nil
	}
	return strings.TrimSpace(string(output)), nil
}

func (s *SystemdService) IsInstalled() bool {
	_, err := os.Stat(s.unitPath)
	return err == nil
}
