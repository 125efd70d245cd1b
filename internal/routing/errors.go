package routing

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrRouteApply marks a failed route change. The concrete cause is a *RouteError.
var ErrRouteApply = errors.New("route apply failed")

// ErrorType is the category of a routing operation error
type ErrorType int

const (
	// ErrPermission indicates insufficient privileges for route operations
	ErrPermission ErrorType = iota
	// ErrNetwork indicates the nexthop or link is not reachable right now
	ErrNetwork
	// ErrInvalidRoute indicates malformed or invalid route parameters
	ErrInvalidRoute
	// ErrSystemCall indicates other netlink or system call failures
	ErrSystemCall
	// ErrTimeout indicates operation timeout
	ErrTimeout
	// ErrNotFound indicates the route or rule is not in the kernel table
	ErrNotFound
	// ErrExists indicates an identical route or rule is already installed
	ErrExists
)

func (e ErrorType) String() string {
	switch e {
	case ErrPermission:
		return "Permission"
	case ErrNetwork:
		return "Network"
	case ErrInvalidRoute:
		return "InvalidRoute"
	case ErrSystemCall:
		return "SystemCall"
	case ErrTimeout:
		return "Timeout"
	case ErrNotFound:
		return "NotFound"
	case ErrExists:
		return "Exists"
	default:
		return "UnknownError"
	}
}

// RouteError is a failed route or rule operation.
type RouteError struct {
	Type        ErrorType
	Action      string
	Destination *net.IPNet
	Gateway     net.IP
	IfName      string
	Cause       error
}

func (e *RouteError) Error() string {
	dst := "<nil>"
	if e.Destination != nil {
		dst = e.Destination.String()
	}
	gw := "direct"
	if e.Gateway != nil {
		gw = e.Gateway.String()
	}
	return fmt.Sprintf("route %s failed [%s] for %s via %s dev %s: %v",
		e.Action, e.Type, dst, gw, e.IfName, e.Cause)
}

func (e *RouteError) Unwrap() []error {
	return []error{ErrRouteApply, e.Cause}
}

// IsRetryable returns true if the error condition might be temporary
func (e *RouteError) IsRetryable() bool {
	return e.Type == ErrNetwork || e.Type == ErrTimeout
}

// IsPermissionError returns true if the error is due to insufficient privileges
func (e *RouteError) IsPermissionError() bool {
	return e.Type == ErrPermission
}

// classify maps a kernel errno to an ErrorType.
func classify(err error) ErrorType {
	switch {
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return ErrPermission
	case errors.Is(err, unix.ENETUNREACH), errors.Is(err, unix.EHOSTUNREACH), errors.Is(err, unix.ENETDOWN):
		return ErrNetwork
	case errors.Is(err, unix.ETIMEDOUT), errors.Is(err, unix.EAGAIN):
		return ErrTimeout
	case errors.Is(err, unix.ESRCH), errors.Is(err, unix.ENOENT):
		return ErrNotFound
	case errors.Is(err, unix.EEXIST):
		return ErrExists
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENODEV):
		return ErrInvalidRoute
	default:
		return ErrSystemCall
	}
}

func isNotFound(err error) bool {
	var re *RouteError
	return errors.As(err, &re) && re.Type == ErrNotFound
}
