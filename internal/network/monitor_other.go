//go:build !linux

package network

import (
	"context"
	"fmt"
	"runtime"
)

func subscribe(context.Context, func()) error {
	return fmt.Errorf("link notifications not supported on %s", runtime.GOOS)
}
