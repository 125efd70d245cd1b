//go:build !unix

package modem

import "os/exec"

func setProcessGroup(*exec.Cmd) {}
