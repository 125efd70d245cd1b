package failover

import (
	"github.com/wesleywu/lte-failover/internal/config"
	"github.com/wesleywu/lte-failover/internal/dns"
	"github.com/wesleywu/lte-failover/internal/modem"
	"github.com/wesleywu/lte-failover/internal/routing"
	"github.com/wesleywu/lte-failover/internal/store"
)

// Error classes surfaced by the controller. None of them stops the reactor.
var (
	ErrConfigInvalid = config.ErrConfigInvalid
	ErrModemInit     = modem.ErrModemInit
	ErrRouteApply    = routing.ErrRouteApply
	ErrDNSProbe      = dns.ErrDNSProbe
	ErrStoreWrite    = store.ErrStoreWrite
)
