package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid marks a policy snapshot that must not be applied.
var ErrConfigInvalid = errors.New("invalid policy configuration")

const (
	maxIfNameLen = 15
	maxAPNLen    = 63
	maxSimSlots  = 2

	// DefaultReportInterval is used when a policy leaves report_interval at zero.
	DefaultReportInterval = 60
)

// Policy is the failover policy snapshot supplied by the store.
// It is treated as immutable: reconfiguration replaces the whole value.
type Policy struct {
	IfName            string `yaml:"if_name" json:"if_name"`
	ManagerEnable     bool   `yaml:"manager_enable" json:"manager_enable"`
	LteFailoverEnable bool   `yaml:"lte_failover_enable" json:"lte_failover_enable"`
	IPv4Enable        bool   `yaml:"ipv4_enable" json:"ipv4_enable"`
	IPv6Enable        bool   `yaml:"ipv6_enable" json:"ipv6_enable"`
	ForceUseLte       bool   `yaml:"force_use_lte" json:"force_use_lte"`
	ActiveSimSlot     uint32 `yaml:"active_simcard_slot" json:"active_simcard_slot"`
	ModemEnable       bool   `yaml:"modem_enable" json:"modem_enable"`
	ReportInterval    uint32 `yaml:"report_interval" json:"report_interval"` // seconds
	APN               string `yaml:"apn" json:"apn"`
}

// ReportPeriod returns the telemetry cadence.
func (p Policy) ReportPeriod() time.Duration {
	if p.ReportInterval == 0 {
		return DefaultReportInterval * time.Second
	}
	return time.Duration(p.ReportInterval) * time.Second
}

// FamilyEnabled reports whether routes of the given address family may be managed.
func (p Policy) FamilyEnabled(ipv4 bool) bool {
	if ipv4 {
		return p.IPv4Enable
	}
	return p.IPv6Enable
}

// Validate checks required fields and their formats.
// Every failure wraps ErrConfigInvalid.
func (p Policy) Validate() error {
	if err := ValidateIfName(p.IfName); err != nil {
		return fmt.Errorf("%w: if_name: %v", ErrConfigInvalid, err)
	}
	if p.ManagerEnable && !p.IPv4Enable && !p.IPv6Enable {
		return fmt.Errorf("%w: at least one of ipv4_enable/ipv6_enable is required", ErrConfigInvalid)
	}
	if p.ActiveSimSlot >= maxSimSlots {
		return fmt.Errorf("%w: active_simcard_slot %d out of range", ErrConfigInvalid, p.ActiveSimSlot)
	}
	// The APN is only needed when we bring the modem up ourselves.
	if p.ModemEnable || p.APN != "" {
		if err := validateAPN(p.APN); err != nil {
			return fmt.Errorf("%w: apn: %v", ErrConfigInvalid, err)
		}
	}
	return nil
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// ValidateIfName checks a Linux interface name.
func ValidateIfName(name string) error {
	if name == "" {
		return errors.New("empty interface name")
	}
	if len(name) > maxIfNameLen {
		return fmt.Errorf("interface name %q longer than %d bytes", name, maxIfNameLen)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/: \t\n") {
		return fmt.Errorf("interface name %q contains invalid characters", name)
	}
	return nil
}

func validateAPN(apn string) error {
	if apn == "" {
		return errors.New("empty apn")
	}
	if len(apn) > maxAPNLen {
		return fmt.Errorf("apn longer than %d bytes", maxAPNLen)
	}
	for _, r := range apn {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}
