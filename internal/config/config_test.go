package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.EvalInterval != 10*time.Second {
		t.Errorf("Expected eval interval 10s, got %v", cfg.EvalInterval)
	}

	if cfg.ClientRouteTable != 200 {
		t.Errorf("Expected client route table 200, got %d", cfg.ClientRouteTable)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.LogLevel = "invalid" },
			expectError: true,
		},
		{
			name:        "invalid eval interval",
			mutate:      func(c *Config) { c.EvalInterval = 0 },
			expectError: true,
		},
		{
			name:        "retry max below min",
			mutate:      func(c *Config) { c.ModemRetryMax = time.Second; c.ModemRetryMin = time.Minute },
			expectError: true,
		},
		{
			name:        "reserved route table",
			mutate:      func(c *Config) { c.ClientRouteTable = 254 },
			expectError: true,
		},
		{
			name:        "bad lte dns",
			mutate:      func(c *Config) { c.LteDNS = []string{"8.8.8.8", "dns.example"} },
			expectError: true,
		},
		{
			name:        "bad wan interface",
			mutate:      func(c *Config) { c.WanIfName = "eth 0" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Expected error: %v, got: %v", tt.expectError, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	// Non-existent file falls back to defaults
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "non-existent.yaml"))
	if err != nil {
		t.Errorf("Expected no error for non-existent file, got: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level, got: %s", cfg.LogLevel)
	}

	cfg, err = LoadConfig("")
	if err != nil {
		t.Errorf("Expected no error for empty path, got: %v", err)
	}

	if cfg == nil {
		t.Error("Expected config, got nil")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `log_level: debug
wan_interface: wan0
eval_interval: 3s
modem_init_command: ["/bin/true"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.WanIfName != "wan0" {
		t.Errorf("WanIfName = %s, want wan0", cfg.WanIfName)
	}
	if cfg.EvalInterval != 3*time.Second {
		t.Errorf("EvalInterval = %v, want 3s", cfg.EvalInterval)
	}
	if len(cfg.ModemInitCommand) != 1 || cfg.ModemInitCommand[0] != "/bin/true" {
		t.Errorf("ModemInitCommand = %v", cfg.ModemInitCommand)
	}
	// untouched fields keep defaults
	if cfg.StateInterval != 30*time.Second {
		t.Errorf("StateInterval = %v, want default 30s", cfg.StateInterval)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation error")
	}
}

func TestConfigSave(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LogLevel = "warn"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.LogLevel != "warn" {
		t.Errorf("Config mismatch after save/load: %s", loaded.LogLevel)
	}
	if loaded.ModemRetryMax != cfg.ModemRetryMax {
		t.Errorf("ModemRetryMax = %v, want %v", loaded.ModemRetryMax, cfg.ModemRetryMax)
	}
}

func validPolicy() Policy {
	return Policy{
		IfName:            "wwan0",
		ManagerEnable:     true,
		LteFailoverEnable: true,
		IPv4Enable:        true,
		ModemEnable:       true,
		ReportInterval:    60,
		APN:               "internet.example",
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{"valid", func(*Policy) {}, false},
		{"missing if_name", func(p *Policy) { p.IfName = "" }, true},
		{"long if_name", func(p *Policy) { p.IfName = "wwan0123456789abc" }, true},
		{"slash in if_name", func(p *Policy) { p.IfName = "ww/an" }, true},
		{"no address family", func(p *Policy) { p.IPv4Enable = false; p.IPv6Enable = false }, true},
		{"family ignored when disabled", func(p *Policy) { p.ManagerEnable = false; p.IPv4Enable = false }, false},
		{"sim slot out of range", func(p *Policy) { p.ActiveSimSlot = 2 }, true},
		{"empty apn with modem", func(p *Policy) { p.APN = "" }, true},
		{"empty apn without modem", func(p *Policy) { p.APN = ""; p.ModemEnable = false }, false},
		{"bad apn", func(p *Policy) { p.APN = "inter net" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("error %v should wrap ErrConfigInvalid", err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	doc := `if_name: wwan0
manager_enable: true
lte_failover_enable: true
ipv4_enable: true
force_use_lte: false
active_simcard_slot: 1
modem_enable: true
report_interval: 30
apn: data.mono
`
	p, err := ParsePolicy([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePolicy failed: %v", err)
	}
	if p.IfName != "wwan0" || p.ActiveSimSlot != 1 || p.APN != "data.mono" {
		t.Errorf("unexpected policy: %+v", p)
	}
	if p.ReportPeriod() != 30*time.Second {
		t.Errorf("ReportPeriod = %v, want 30s", p.ReportPeriod())
	}

	if _, err := ParsePolicy([]byte("if_name: [")); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("malformed yaml should be ErrConfigInvalid, got %v", err)
	}
}

func TestReportPeriodDefault(t *testing.T) {
	if got := (Policy{}).ReportPeriod(); got != DefaultReportInterval*time.Second {
		t.Errorf("ReportPeriod = %v, want default", got)
	}
}
