package dns

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/logger"
)

const systemResolvConf = "# system\nsearch lan\nnameserver 192.168.1.1\n"

func newTestSwitcher(t *testing.T) (*Switcher, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewDefaultConfig()
	cfg.ResolvConf = filepath.Join(dir, "resolv.conf")
	cfg.ResolvConfBackup = filepath.Join(dir, "state", "resolv.conf.wan")

	if err := os.WriteFile(cfg.ResolvConf, []byte(systemResolvConf), 0644); err != nil {
		t.Fatalf("Failed to write resolv.conf: %v", err)
	}
	return NewSwitcher(cfg, logger.Discard()), cfg.ResolvConf
}

func lteServers() []net.IP {
	return []net.IP{net.ParseIP("10.10.0.1"), net.ParseIP("10.10.0.2")}
}

func TestUpdateAndRestoreRoundTrip(t *testing.T) {
	sw, path := newTestSwitcher(t)

	if err := sw.UpdateResolvConf(lteServers()); err != nil {
		t.Fatalf("UpdateResolvConf failed: %v", err)
	}
	if sw.Active() != UplinkLTE {
		t.Errorf("Active = %s, want lte", sw.Active())
	}

	ips, err := ReadNameservers(path)
	if err != nil {
		t.Fatalf("ReadNameservers failed: %v", err)
	}
	if len(ips) != 2 || !ips[0].Equal(net.ParseIP("10.10.0.1")) {
		t.Errorf("unexpected live nameservers %v", ips)
	}

	defaults, err := sw.DefaultServers()
	if err != nil || len(defaults) != 1 || !defaults[0].Equal(net.ParseIP("192.168.1.1")) {
		t.Errorf("DefaultServers = %v, %v", defaults, err)
	}

	if err := sw.RestoreResolvConf(); err != nil {
		t.Fatalf("RestoreResolvConf failed: %v", err)
	}
	if sw.Active() != UplinkWAN {
		t.Errorf("Active = %s, want wan", sw.Active())
	}

	data, _ := os.ReadFile(path)
	if string(data) != systemResolvConf {
		t.Errorf("resolv.conf not restored:\n%s", data)
	}
	if _, err := os.Stat(sw.backup); !os.IsNotExist(err) {
		t.Error("backup should be removed after restore")
	}
}

func TestUpdateResolvConfIdempotent(t *testing.T) {
	sw, _ := newTestSwitcher(t)

	if err := sw.UpdateResolvConf(lteServers()); err != nil {
		t.Fatal(err)
	}
	if err := sw.UpdateResolvConf(lteServers()); err != nil {
		t.Fatal(err)
	}
	if sw.writes != 1 {
		t.Errorf("Expected 1 write, got %d", sw.writes)
	}
}

func TestUpdateKeepsBackupFromEarlierRun(t *testing.T) {
	sw, path := newTestSwitcher(t)

	if err := sw.UpdateResolvConf(lteServers()); err != nil {
		t.Fatal(err)
	}

	// a restart while LTE is active must not overwrite the saved default
	if err := sw.SaveDefault(); err != nil {
		t.Fatal(err)
	}
	if err := sw.RestoreResolvConf(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != systemResolvConf {
		t.Errorf("system default lost:\n%s", data)
	}
}

func TestRestoreWithoutBackup(t *testing.T) {
	sw, path := newTestSwitcher(t)

	if err := sw.RestoreResolvConf(); err != nil {
		t.Fatalf("RestoreResolvConf failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != systemResolvConf {
		t.Error("restore without backup must leave the file alone")
	}
	if sw.writes != 0 {
		t.Errorf("Expected no writes, got %d", sw.writes)
	}
}

func TestUpdateResolvConfRejectsEmpty(t *testing.T) {
	sw, _ := newTestSwitcher(t)
	if err := sw.UpdateResolvConf(nil); err == nil {
		t.Error("Expected error for empty server list")
	}
	if sw.Active() != UplinkWAN {
		t.Error("active uplink must not change on error")
	}
}

func TestParseNameservers(t *testing.T) {
	content := `# comment
; other comment
domain lan
nameserver 1.1.1.1
nameserver fe80::1%eth0
options edns0
`
	ips, err := parseNameservers(strings.NewReader(content))
	if err != nil {
		t.Fatalf("parseNameservers failed: %v", err)
	}
	if len(ips) != 2 || !ips[1].Equal(net.ParseIP("fe80::1")) {
		t.Errorf("unexpected servers %v", ips)
	}

	if _, err := parseNameservers(strings.NewReader("nameserver bogus\n")); err == nil {
		t.Error("Expected error for invalid address")
	}
	if _, err := parseNameservers(strings.NewReader("nameserver\n")); err == nil {
		t.Error("Expected error for missing address")
	}
}

func TestRenderResolvConf(t *testing.T) {
	out := renderResolvConf(lteServers())
	if !bytes.Contains(out, []byte("nameserver 10.10.0.2\n")) {
		t.Errorf("unexpected render:\n%s", out)
	}
}
