//go:build !linux

package daemon

import "errors"

var errUnsupported = errors.New("service management is only supported on Linux")

type unsupportedService struct{}

func (unsupportedService) Install() error          { return errUnsupported }
func (unsupportedService) Uninstall() error        { return errUnsupported }
func (unsupportedService) Start() error            { return errUnsupported }
func (unsupportedService) Stop() error             { return errUnsupported }
func (unsupportedService) Status() (string, error) { return "unknown", errUnsupported }
func (unsupportedService) IsInstalled() bool       { return false }

// NewPlatformService returns a service manager that always fails
func NewPlatformService(execPath, configPath string) PlatformService {
	return unsupportedService{}
}
