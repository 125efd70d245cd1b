//go:build !linux

package dns

import "syscall"

// bindToDevice is Linux only; elsewhere the source address alone selects the uplink.
func bindToDevice(string) func(network, address string, c syscall.RawConn) error {
	return nil
}
