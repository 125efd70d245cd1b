package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the daemon looks for its settings when --config is not given.
const DefaultConfigPath = "/etc/ltem/config.yaml"

// Config represents the daemon settings of the LTE failover manager.
// Failover policy itself lives in the store (see Policy).
type Config struct {
	LogLevel   string `yaml:"log_level"`
	SilentMode bool   `yaml:"silent"`
	DaemonMode bool   `yaml:"-"`

	// Store
	PolicyFile string `yaml:"policy_file"`
	StateFile  string `yaml:"state_file"`

	// Network state sources
	WanIfName string `yaml:"wan_interface"`
	LeaseFile string `yaml:"lease_file"`

	// Resolver
	ResolvConf       string        `yaml:"resolv_conf"`
	ResolvConfBackup string        `yaml:"resolv_conf_backup"`
	DNSProbeHost     string        `yaml:"dns_probe_host"`
	DNSProbeTimeout  time.Duration `yaml:"dns_probe_timeout"`
	// used when the modem does not report resolvers
	LteDNS []string `yaml:"lte_dns"`

	// Timers
	EvalInterval  time.Duration `yaml:"eval_interval"`
	StateInterval time.Duration `yaml:"state_interval"`

	// Modem bring-up
	ModemInitCommand   []string      `yaml:"modem_init_command"`
	ModemStatusCommand []string      `yaml:"modem_status_command"`
	ModemResetCommand  []string      `yaml:"modem_reset_command"`
	ModemInitTimeout   time.Duration `yaml:"modem_init_timeout"`
	ModemRetryMin      time.Duration `yaml:"modem_retry_min"`
	ModemRetryMax      time.Duration `yaml:"modem_retry_max"`
	ModemResetAfter    int           `yaml:"modem_reset_after"`

	// Client routes
	ClientRouteTable   int `yaml:"client_route_table"`
	ClientRulePriority int `yaml:"client_rule_priority"`
	ConcurrencyLimit   int `yaml:"concurrency_limit"`
	RouteOpsPerSecond  int `yaml:"route_ops_per_second"`
	RouteOpsBurst      int `yaml:"route_ops_burst"`

	// Telemetry transport
	MQTTBroker    string `yaml:"mqtt_broker"`
	MQTTClientID  string `yaml:"mqtt_client_id"`
	TopicPrefix   string `yaml:"topic_prefix"`
	TelemetryFile string `yaml:"telemetry_file"`
}

// NewDefaultConfig returns a config with the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		PolicyFile: "/etc/ltem/policy.yaml",
		StateFile:  "/var/run/ltem/state.json",

		WanIfName: "eth0",
		LeaseFile: "/tmp/dhcp.leases",

		ResolvConf:       "/etc/resolv.conf",
		ResolvConfBackup: "/var/run/ltem/resolv.conf.wan",
		DNSProbeHost:     "www.google.com",
		DNSProbeTimeout:  2 * time.Second,

		EvalInterval:  10 * time.Second,
		StateInterval: 30 * time.Second,

		ModemInitCommand:   []string{"/usr/sbin/lte-modem", "init"},
		ModemStatusCommand: []string{"/usr/sbin/lte-modem", "status", "--json"},
		ModemResetCommand:  []string{"/usr/sbin/lte-modem", "reset"},
		ModemInitTimeout:   90 * time.Second,
		ModemRetryMin:      5 * time.Second,
		ModemRetryMax:      5 * time.Minute,
		ModemResetAfter:    5,

		ClientRouteTable:   200,
		ClientRulePriority: 1000,
		ConcurrencyLimit:   8,
		RouteOpsPerSecond:  50,
		RouteOpsBurst:      10,

		MQTTClientID: "ltem",
		TopicPrefix:  "lte",
	}
}

// Validate checks the daemon settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.EvalInterval <= 0 {
		return fmt.Errorf("eval interval must be positive, got %v", c.EvalInterval)
	}
	if c.StateInterval <= 0 {
		return fmt.Errorf("state interval must be positive, got %v", c.StateInterval)
	}
	if c.ModemRetryMin <= 0 || c.ModemRetryMax < c.ModemRetryMin {
		return fmt.Errorf("invalid modem retry window: min %v max %v", c.ModemRetryMin, c.ModemRetryMax)
	}
	if c.ModemInitTimeout <= 0 {
		return fmt.Errorf("modem init timeout must be positive, got %v", c.ModemInitTimeout)
	}
	if err := ValidateIfName(c.WanIfName); err != nil {
		return fmt.Errorf("invalid wan interface: %w", err)
	}
	if c.PolicyFile == "" || c.StateFile == "" {
		return errors.New("policy file and state file are required")
	}
	if c.ResolvConf == "" || c.ResolvConfBackup == "" {
		return errors.New("resolv.conf and its backup path are required")
	}
	for _, s := range c.LteDNS {
		if net.ParseIP(s) == nil {
			return fmt.Errorf("invalid lte dns server: %q", s)
		}
	}
	if c.ClientRouteTable <= 0 || c.ClientRouteTable == 254 || c.ClientRouteTable == 255 {
		return fmt.Errorf("client route table %d collides with a reserved table", c.ClientRouteTable)
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency limit must be positive, got %d", c.ConcurrencyLimit)
	}
	if c.RouteOpsPerSecond <= 0 || c.RouteOpsBurst <= 0 {
		return fmt.Errorf("invalid route rate limit: %d/s burst %d", c.RouteOpsPerSecond, c.RouteOpsBurst)
	}

	return nil
}

// LoadConfig reads a YAML config file. A missing file or empty path yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
