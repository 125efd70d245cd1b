package daemon

// PlatformService installs and controls the manager as a system service
type PlatformService interface {
	Install() error
	Uninstall() error
	Start() error
	Stop() error
	Status() (string, error)
	IsInstalled() bool
}
