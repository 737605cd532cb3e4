package proxy

import (
	"fmt"
	"strings"

	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/cuemby/ztgateway/pkg/types"
)

// Router authorizes a sniffed hostname against the longest matching
// private zone and resolves it to a backend route.
type Router struct {
	store storage.Store
}

// NewRouter creates a Router backed by store.
func NewRouter(store storage.Store) *Router {
	return &Router{store: store}
}

// ErrUnauthorized is returned when the authenticated CN is not in the
// matching zone's access list.
var ErrUnauthorized = fmt.Errorf("cn not authorized for zone")

// Resolve finds the longest-suffix zone for hostname, checks cn
// against its access list, and looks up the route for the zone's
// owning service. It returns ErrUnauthorized (drop, no information
// disclosure about whether the zone exists) or a plain error when no
// zone or no route matches. zoneName is returned alongside the route
// so callers can label per-zone metrics/events without a second
// lookup.
func (r *Router) Resolve(hostname, cn string) (zoneName string, route *types.Route, err error) {
	name := normalizeHostname(hostname)

	zone, err := r.store.FindZoneForName(name)
	if err != nil {
		return "", nil, fmt.Errorf("find zone for %s: %w", name, err)
	}
	if zone == nil {
		return "", nil, fmt.Errorf("no zone matches %s", name)
	}
	if !zone.AccessList[cn] {
		return "", nil, ErrUnauthorized
	}
	if zone.ServiceCN == "" {
		return "", nil, fmt.Errorf("zone %s has no owning service", zone.Name)
	}

	route, err = r.store.GetRoute(zone.ServiceCN)
	if err != nil {
		return "", nil, fmt.Errorf("no route for service %s: %w", zone.ServiceCN, err)
	}
	return zone.Name, route, nil
}

func normalizeHostname(host string) string {
	host = strings.ToLower(host)
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSuffix(host, ".")
}
