package adminapi

import (
	"fmt"
	"time"

	"github.com/cuemby/ztgateway/pkg/events"
	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/metrics"
	"github.com/cuemby/ztgateway/pkg/security"
	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/cuemby/ztgateway/pkg/types"
)

// Config carries the values the admin API embeds into every signed
// configuration token it issues.
type Config struct {
	// DataDir is where issued endpoint certificates are persisted,
	// alongside the CA material (pkg/security owns the certs/ layout).
	DataDir string

	// DNSAddr is the gateway's DoT address handed to endpoints, e.g.
	// "gateway.example.com:853".
	DNSAddr string

	// ProxyAddr is the gateway's tunnel address handed to endpoints,
	// e.g. "gateway.example.com:8443".
	ProxyAddr string

	// ServerName is the TLS server name endpoints must expect when
	// connecting to either listener.
	ServerName string

	// TokenTTL bounds the validity of each signed-configuration token.
	TokenTTL time.Duration

	// BinaryDir, if set, holds one endpoint executable per supported
	// platform (e.g. BinaryDir/endpoint-linux-amd64, or
	// BinaryDir/endpoint-windows-amd64.exe); bundles omit the binary
	// when no matching file is found.
	BinaryDir string
}

// API is the gateway's administrative control plane.
type API struct {
	store  storage.Store
	ca     *security.CA
	broker *events.Broker
	cfg    Config
}

// New constructs an API over an already-open store, CA, and event broker.
func New(store storage.Store, ca *security.CA, broker *events.Broker, cfg Config) *API {
	return &API{store: store, ca: ca, broker: broker, cfg: cfg}
}

// CreateClient issues credentials for a new client endpoint, registers it,
// and returns its CN and deployment bundle. Issuance, store registration,
// and certificate persistence succeed or fail as one unit; see
// security.IssueAndRegister.
func (a *API) CreateClient(name, platform string) (string, []byte, error) {
	issued, endpoint, err := security.IssueAndRegister(a.ca, a.store, a.cfg.DataDir, types.RoleClient, name, platform, nil)
	if err != nil {
		return "", nil, fmt.Errorf("issue and register client endpoint: %w", err)
	}

	bundle, err := a.buildBundle(endpoint, issued, nil)
	if err != nil {
		a.rollbackEndpoint(issued.CN)
		return "", nil, fmt.Errorf("assemble client bundle: %w", err)
	}

	metrics.EndpointsTotal.WithLabelValues(string(types.RoleClient)).Inc()
	metrics.CertificatesIssuedTotal.WithLabelValues(string(types.RoleClient)).Inc()
	metrics.BundlesIssuedTotal.Inc()
	a.publish(events.EventEndpointCreated, fmt.Sprintf("client %s (%s) created", issued.CN, name))

	return issued.CN, bundle, nil
}

// CreateService issues credentials for a new service endpoint, registers
// it, creates its route, and creates each of its zones with an access list
// initially containing only the service itself. Endpoint issuance is
// atomic per security.IssueAndRegister; the route and zones created after
// it are rolled back (by deleting the endpoint, which cascades to them)
// if any later step fails, so a failed CreateService never leaves a
// dangling route or zone with no corresponding endpoint.
func (a *API) CreateService(name, platform, backendHost string, backendPort int, domains []string, records map[string][]types.Record) (string, []byte, error) {
	issued, endpoint, err := security.IssueAndRegister(a.ca, a.store, a.cfg.DataDir, types.RoleService, name, platform, domains)
	if err != nil {
		return "", nil, fmt.Errorf("issue and register service endpoint: %w", err)
	}

	route := &types.Route{
		ServiceCN:   issued.CN,
		BackendHost: backendHost,
		BackendPort: backendPort,
		Domains:     domains,
		Name:        name,
	}
	if err := a.store.CreateRoute(route); err != nil {
		a.rollbackEndpoint(issued.CN)
		return "", nil, fmt.Errorf("create route: %w", err)
	}

	for _, domain := range domains {
		zone := &types.Zone{
			Name:       domain,
			Records:    records,
			ServiceCN:  issued.CN,
			AccessList: map[string]bool{issued.CN: true},
		}
		if err := a.store.CreateZone(zone); err != nil {
			a.rollbackEndpoint(issued.CN)
			return "", nil, fmt.Errorf("create zone %s: %w", domain, err)
		}
		metrics.ZonesTotal.Inc()
		a.publish(events.EventZoneCreated, fmt.Sprintf("zone %s created for service %s", domain, issued.CN))
	}
	metrics.RoutesTotal.Inc()
	a.publish(events.EventRouteCreated, fmt.Sprintf("route for service %s created (backend=%s:%d)", issued.CN, backendHost, backendPort))

	bundle, err := a.buildBundle(endpoint, issued, domains)
	if err != nil {
		a.rollbackEndpoint(issued.CN)
		return "", nil, fmt.Errorf("assemble service bundle: %w", err)
	}

	metrics.EndpointsTotal.WithLabelValues(string(types.RoleService)).Inc()
	metrics.CertificatesIssuedTotal.WithLabelValues(string(types.RoleService)).Inc()
	metrics.BundlesIssuedTotal.Inc()
	a.publish(events.EventEndpointCreated, fmt.Sprintf("service %s (%s) created, domains=%v", issued.CN, name, domains))

	return issued.CN, bundle, nil
}

// rollbackEndpoint undoes a partially completed CreateClient/CreateService
// call: it deletes the endpoint (cascading to any route/zones already
// created for it) and removes its certificate material, logging rather
// than returning if the cleanup itself fails, since the caller is already
// returning the original error.
func (a *API) rollbackEndpoint(cn string) {
	logger := log.WithComponent("adminapi")
	if err := a.store.DeleteEndpoint(cn); err != nil {
		logger.Error().Err(err).Str("cn", cn).Msg("failed to roll back endpoint after partial create")
	}
	if err := security.RemoveEndpointCertificate(a.cfg.DataDir, cn); err != nil {
		logger.Error().Err(err).Str("cn", cn).Msg("failed to roll back endpoint certificate after partial create")
	}
}

// AuthorizeEndpoint adds cn to zone's access list.
func (a *API) AuthorizeEndpoint(zone, cn string) error {
	if err := a.store.AuthorizeEndpoint(zone, cn); err != nil {
		return err
	}
	a.publish(events.EventZoneAuthorized, fmt.Sprintf("%s authorized on zone %s", cn, zone))
	return nil
}

// DeauthorizeEndpoint removes cn from zone's access list.
func (a *API) DeauthorizeEndpoint(zone, cn string) error {
	if err := a.store.DeauthorizeEndpoint(zone, cn); err != nil {
		return err
	}
	a.publish(events.EventZoneAuthorized, fmt.Sprintf("%s deauthorized on zone %s", cn, zone))
	return nil
}

// DeleteEndpoint removes an endpoint (and its store-side cascade) along
// with its on-disk certificate material.
func (a *API) DeleteEndpoint(cn string) error {
	if err := a.store.DeleteEndpoint(cn); err != nil {
		return err
	}
	if err := security.RemoveEndpointCertificate(a.cfg.DataDir, cn); err != nil {
		log.WithComponent("adminapi").Warn().Err(err).Str("cn", cn).Msg("failed to remove endpoint certificate material")
	}
	a.publish(events.EventEndpointDeleted, fmt.Sprintf("endpoint %s deleted", cn))
	return nil
}

// DeleteZone removes a zone independent of its owning endpoint. The
// endpoint itself, and any other zone it owns, are unaffected.
func (a *API) DeleteZone(name string) error {
	if err := a.store.DeleteZone(name); err != nil {
		return err
	}
	metrics.ZonesTotal.Dec()
	a.publish(events.EventZoneDeleted, fmt.Sprintf("zone %s deleted", name))
	return nil
}

// DeleteRoute removes a service's route independent of the service
// endpoint itself; the zones it serves keep resolving their records
// authoritatively, but traffic to them can no longer be tunneled.
func (a *API) DeleteRoute(serviceCN string) error {
	if err := a.store.DeleteRoute(serviceCN); err != nil {
		return err
	}
	metrics.RoutesTotal.Dec()
	a.publish(events.EventRouteDeleted, fmt.Sprintf("route for service %s deleted", serviceCN))
	return nil
}

// ListEndpoints returns every registered endpoint.
func (a *API) ListEndpoints() ([]*types.Endpoint, error) {
	return a.store.ListEndpoints()
}

// ListZones returns every configured zone.
func (a *API) ListZones() ([]*types.Zone, error) {
	return a.store.ListZones()
}

// ListRoutes returns every configured route.
func (a *API) ListRoutes() ([]*types.Route, error) {
	return a.store.ListRoutes()
}

func (a *API) publish(t events.EventType, msg string) {
	if a.broker == nil {
		return
	}
	a.broker.Publish(&events.Event{Type: t, Message: msg})
}
