package storage

import (
	"github.com/cuemby/ztgateway/pkg/types"
)

// Store defines the interface for gateway state storage: endpoints,
// zones, and routes, plus the fast-path zone lookup the resolver and
// proxy need on every connection.
type Store interface {
	// Endpoints
	CreateEndpoint(endpoint *types.Endpoint) error
	GetEndpoint(cn string) (*types.Endpoint, error)
	ListEndpoints() ([]*types.Endpoint, error)
	// DeleteEndpoint removes the endpoint and cascades per the data
	// model's referential invariants: the CN is pruned from every
	// zone's access list, and if it is a service CN its route and any
	// zone whose service_cn names it are deleted too.
	DeleteEndpoint(cn string) error

	// Zones
	CreateZone(zone *types.Zone) error
	GetZone(name string) (*types.Zone, error)
	ListZones() ([]*types.Zone, error)
	DeleteZone(name string) error
	AuthorizeEndpoint(zoneName, cn string) error
	DeauthorizeEndpoint(zoneName, cn string) error
	// FindZoneForName returns the longest zone Z such that name equals
	// Z or is a subdomain of Z, or nil if none matches.
	FindZoneForName(name string) (*types.Zone, error)

	// Routes
	CreateRoute(route *types.Route) error
	GetRoute(serviceCN string) (*types.Route, error)
	ListRoutes() ([]*types.Route, error)
	DeleteRoute(serviceCN string) error

	Close() error
}
