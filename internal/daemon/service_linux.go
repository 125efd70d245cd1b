//go:build linux

package daemon

// NewPlatformService creates the systemd service manager
func NewPlatformService(execPath, configPath string) PlatformService {
	return NewSystemdService(execPath, configPath)
}
