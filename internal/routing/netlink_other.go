//go:build !linux

package routing

import (
	"fmt"
	"runtime"
)

// NewSystem is only implemented on Linux. Use NewMemorySystem for dry runs elsewhere.
func NewSystem() (System, error) {
	return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
}
