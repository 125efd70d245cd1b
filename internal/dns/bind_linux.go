package dns

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// bindToDevice restricts a socket to one interface so the query leaves
// through that uplink whatever the main table prefers.
func bindToDevice(ifName string) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName)
		}); err != nil {
			return err
		}
		return serr
	}
}
