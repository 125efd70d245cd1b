package failover

import (
	"fmt"

	"github.com/wesleywu/lte-failover/internal/config"
)

type WanState int

const (
	WanUnknown WanState = iota
	WanUp
	WanDown
)

func (s WanState) String() string {
	switch s {
	case WanUp:
		return "up"
	case WanDown:
		return "down"
	default:
		return "unknown"
	}
}

func (s WanState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type LteState int

const (
	LteUnknown LteState = iota
	LteInit
	LteUp
	LteDown
)

func (s LteState) String() string {
	switch s {
	case LteInit:
		return "init"
	case LteUp:
		return "up"
	case LteDown:
		return "down"
	default:
		return "unknown"
	}
}

func (s LteState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Target is the uplink chosen to carry traffic.
type Target int

const (
	TargetWAN Target = iota
	TargetLTE
)

func (t Target) String() string {
	if t == TargetLTE {
		return "lte"
	}
	return "wan"
}

func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseWanState accepts the names produced by String.
func ParseWanState(s string) (WanState, error) {
	switch s {
	case "up":
		return WanUp, nil
	case "down":
		return WanDown, nil
	case "unknown", "":
		return WanUnknown, nil
	default:
		return WanUnknown, fmt.Errorf("invalid wan state %q", s)
	}
}

// ParseLteState accepts the names produced by String.
func ParseLteState(s string) (LteState, error) {
	switch s {
	case "up":
		return LteUp, nil
	case "down":
		return LteDown, nil
	case "init":
		return LteInit, nil
	case "unknown", "":
		return LteUnknown, nil
	default:
		return LteUnknown, fmt.Errorf("invalid lte state %q", s)
	}
}

// ParseTarget accepts the names produced by String.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "wan", "":
		return TargetWAN, nil
	case "lte":
		return TargetLTE, nil
	default:
		return TargetWAN, fmt.Errorf("invalid target %q", s)
	}
}

func (s *WanState) UnmarshalText(b []byte) error {
	v, err := ParseWanState(string(b))
	*s = v
	return err
}

func (s *LteState) UnmarshalText(b []byte) error {
	v, err := ParseLteState(string(b))
	*s = v
	return err
}

func (t *Target) UnmarshalText(b []byte) error {
	v, err := ParseTarget(string(b))
	*t = v
	return err
}

// DecideTarget picks the uplink for the given link states and policy.
// Forcing LTE only takes effect while LTE failover is enabled.
func DecideTarget(wan WanState, lte LteState, p config.Policy) Target {
	if (p.LteFailoverEnable && p.ForceUseLte) || (wan == WanDown && lte == LteUp) {
		return TargetLTE
	}
	return TargetWAN
}
