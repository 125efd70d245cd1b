//go:build !linux

package report

func systemUptime() int64 { return 0 }
