package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/daemon"
	"github.com/wesleywu/lte-failover/internal/dns"
	"github.com/wesleywu/lte-failover/internal/failover"
	"github.com/wesleywu/lte-failover/internal/logger"
	"github.com/wesleywu/lte-failover/internal/report"
	"github.com/wesleywu/lte-failover/internal/routing"
	"github.com/wesleywu/lte-failover/internal/store"
)

var (
	configFile  string
	silentMode  bool
	verboseMode bool

	dryRun bool

	checkVia string

	decideWan      string
	decideLte      string
	decideForce    bool
	decideFailover bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ltem",
		Short: "LTE failover manager",
		Long:  `Moves traffic to the LTE backup uplink when the wired WAN fails and back when it recovers.`,
	}

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the failover manager",
		Long:  `Run the failover reactor: follow link, lease and policy changes and keep routes and resolvers on the chosen uplink.`,
		Run:   runDaemon,
	}
	daemonCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Apply routes to an in-memory table and resolvers to a scratch file")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show service and failover state",
		Run:   showStatus,
	}

	checkDNSCmd := &cobra.Command{
		Use:   "check-dns <server> [hostname]",
		Short: "Probe a resolver",
		Args:  cobra.RangeArgs(1, 2),
		Run:   checkDNS,
	}
	checkDNSCmd.Flags().StringVarP(&checkVia, "interface", "i", "", "Send the query out through this interface")

	decideCmd := &cobra.Command{
		Use:   "decide",
		Short: "Print the uplink chosen for the given link states",
		Run:   decide,
	}
	decideCmd.Flags().StringVar(&decideWan, "wan", "up", "WAN state (up, down, unknown)")
	decideCmd.Flags().StringVar(&decideLte, "lte", "down", "LTE state (up, down, init, unknown)")
	decideCmd.Flags().BoolVar(&decideForce, "force", false, "Force LTE")
	decideCmd.Flags().BoolVar(&decideFailover, "failover", true, "LTE failover enabled")

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install as system service",
		Run:   installService,
	}

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall system service",
		Run:   uninstallService,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run:   showVersion,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigPath, "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&silentMode, "silent", "s", false, "Silent mode (no output)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Verbose mode (debug level logging)")

	rootCmd.AddCommand(daemonCmd, statusCmd, checkDNSCmd, decideCmd, installCmd, uninstallCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if silentMode {
		cfg.SilentMode = true
	}
	if verboseMode {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func newLogger(cfg *config.Config) *logger.Logger {
	if cfg.SilentMode {
		return logger.Discard()
	}
	return logger.New(cfg.LogLevel)
}

func runDaemon(_ *cobra.Command, _ []string) {
	cfg := loadConfig()
	cfg.DaemonMode = true
	log := newLogger(cfg)

	var deps daemon.Deps
	if dryRun {
		if err := useScratchResolver(cfg); err != nil {
			log.Error("Failed to prepare dry run", "error", err)
			os.Exit(1)
		}
		deps.System = routing.NewMemorySystem()
		log.Info("Dry run: kernel routes and resolv.conf are left untouched", "resolv_conf", cfg.ResolvConf)
	} else if os.Getuid() != 0 {
		log.Error("Root privileges required")
		os.Exit(1)
	}

	transport, err := report.NewTransport(cfg)
	if err != nil {
		log.Warn("Telemetry disabled", "error", err)
	}
	deps.Transport = transport

	svc, err := daemon.NewService(cfg, deps, log)
	if err != nil {
		log.Error("Failed to create service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Error("Service error", "error", err)
		os.Exit(1)
	}
}

// useScratchResolver points the resolver paths at copies under the state directory.
func useScratchResolver(cfg *config.Config) error {
	dir := filepath.Join(filepath.Dir(cfg.StateFile), "dry-run")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(cfg.ResolvConf)
	if err != nil {
		return err
	}
	cfg.ResolvConf = filepath.Join(dir, "resolv.conf")
	cfg.ResolvConfBackup = filepath.Join(dir, "resolv.conf.wan")
	return os.WriteFile(cfg.ResolvConf, data, 0644)
}

func showStatus(_ *cobra.Command, _ []string) {
	cfg := loadConfig()

	service := daemon.NewPlatformService("", "")
	if status, err := service.Status(); err == nil {
		fmt.Printf("Service status: %s\n", status)
	}
	fmt.Printf("Service installed: %t\n", service.IsInstalled())

	st, err := store.LoadState(cfg.StateFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read state: %v\n", err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode state: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func checkDNS(_ *cobra.Command, args []string) {
	cfg := loadConfig()

	server := net.ParseIP(args[0])
	if server == nil {
		fmt.Fprintf(os.Stderr, "Invalid resolver address: %s\n", args[0])
		os.Exit(1)
	}
	hostname := cfg.DNSProbeHost
	if len(args) > 1 {
		hostname = args[1]
	}

	err := dns.Probe(context.Background(), net.JoinHostPort(server.String(), "53"), hostname, dns.Via{IfName: checkVia}, cfg.DNSProbeTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ %s resolved %s\n", server, hostname)
}

func decide(_ *cobra.Command, _ []string) {
	wan, err := failover.ParseWanState(decideWan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	lte, err := failover.ParseLteState(decideLte)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := config.Policy{LteFailoverEnable: decideFailover, ForceUseLte: decideForce}
	fmt.Println(failover.DecideTarget(wan, lte, p))
}

func installService(_ *cobra.Command, _ []string) {
	if os.Getuid() != 0 {
		fmt.Fprintf(os.Stderr, "Error: Root privileges required for installation\n")
		os.Exit(1)
	}

	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	service := daemon.NewPlatformService(execPath, configFile)
	if err := service.Install(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to install service: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Service installed successfully (%s)\n", runtime.GOOS)
}

func uninstallService(_ *cobra.Command, _ []string) {
	if os.Getuid() != 0 {
		fmt.Fprintf(os.Stderr, "Error: Root privileges required for uninstallation\n")
		os.Exit(1)
	}

	service := daemon.NewPlatformService("", "")
	if err := service.Uninstall(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to uninstall service: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Service uninstalled successfully")
}

func showVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("LTE Failover Manager v%s\n", daemon.Version())
	fmt.Printf("Runtime: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
