package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	*slog.Logger
}

func New(logLevel string) *Logger {
	return NewWithWriter(os.Stdout, logLevel)
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(w io.Writer, logLevel string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(logLevel),
		AddSource: logLevel == "debug",
	}

	handler := slog.NewJSONHandler(w, opts)

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used for silent mode and tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "error")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
	}
}

func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
	}
}

func (l *Logger) Transition(from, to, reason string, count uint32) {
	l.Info("Uplink transition",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("reason", reason),
		slog.Uint64("failover_count", uint64(count)))
}

func (l *Logger) RouteOperation(action, dst, gateway, iface string, metric int, duration int64, success bool) {
	l.Info("Route operation completed",
		slog.String("action", action),
		slog.String("destination", dst),
		slog.String("gateway", gateway),
		slog.String("interface", iface),
		slog.Int("metric", metric),
		slog.Int64("duration_ms", duration),
		slog.Bool("success", success))
}

func (l *Logger) DNSSwitch(uplink string, servers []string) {
	l.Info("Resolver configuration switched",
		slog.String("uplink", uplink),
		slog.Any("servers", servers))
}

func (l *Logger) LinkChange(link, oldState, newState string) {
	l.Info("Link state changed",
		slog.String("link", link),
		slog.String("old_state", oldState),
		slog.String("new_state", newState))
}

func (l *Logger) ModemInit(attempt int, success bool, next string) {
	l.Info("Modem bring-up finished",
		slog.Int("attempt", attempt),
		slog.Bool("success", success),
		slog.String("next_retry", next))
}

func (l *Logger) ServiceStart(version, pid string) {
	l.Info("Service starting",
		slog.String("version", version),
		slog.String("pid", pid))
}

func (l *Logger) ServiceStop() {
	l.Info("Service stopping")
}

func (l *Logger) BatchOperation(action string, total, success, failed int, duration int64) {
	l.Info("Batch operation completed",
		slog.String("action", action),
		slog.Int("total", total),
		slog.Int("success", success),
		slog.Int("failed", failed),
		slog.Int64("duration_ms", duration))
}

func (l *Logger) ConfigLoaded(file string, ifName string, managerEnabled bool) {
	l.Info("Configuration loaded",
		slog.String("config_file", file),
		slog.String("lte_interface", ifName),
		slog.Bool("manager_enable", managerEnabled))
}

func (l *Logger) Performance(operation string, metrics map[string]interface{}) {
	args := []interface{}{
		"operation", operation,
	}

	for k, v := range metrics {
		args = append(args, k, v)
	}

	l.Debug("performance metrics", args...)
}
