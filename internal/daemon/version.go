package daemon

// version is set at build time with -ldflags "-X .../internal/daemon.version=...".
var version = "1.0.0"

func Version() string { return version }
