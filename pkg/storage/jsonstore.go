package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/types"
)

const (
	endpointsFile = "endpoints.json"
	zonesFile     = "zones.json"
	routesFile    = "routes.json"
)

// JSONStore implements Store over three flat JSON documents under a
// data directory, each flushed atomically after every mutation.
type JSONStore struct {
	dataDir string
	mu      sync.RWMutex

	endpoints map[string]*types.Endpoint
	zones     map[string]*types.Zone
	routes    map[string]*types.Route
}

// NewJSONStore loads (or initializes) the three documents under
// dataDir into memory.
func NewJSONStore(dataDir string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &JSONStore{
		dataDir:   dataDir,
		endpoints: make(map[string]*types.Endpoint),
		zones:     make(map[string]*types.Zone),
		routes:    make(map[string]*types.Route),
	}

	if err := loadJSON(filepath.Join(dataDir, endpointsFile), &s.endpoints); err != nil {
		return nil, fmt.Errorf("failed to load endpoints: %w", err)
	}
	if err := loadJSON(filepath.Join(dataDir, zonesFile), &s.zones); err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}
	if err := loadJSON(filepath.Join(dataDir, routesFile), &s.routes); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	return s, nil
}

// loadJSON populates v from path if it exists; a missing file leaves
// v at its zero value (an empty, already-initialized map).
func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeJSON marshals v and atomically replaces path: write to a temp
// file in the same directory, then rename over the target.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", filepath.Base(path), err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename into place %s: %w", filepath.Base(path), err)
	}

	return nil
}

func normalizeZoneName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func (s *JSONStore) flushEndpoints() error {
	return writeJSON(filepath.Join(s.dataDir, endpointsFile), s.endpoints)
}

func (s *JSONStore) flushZones() error {
	return writeJSON(filepath.Join(s.dataDir, zonesFile), s.zones)
}

func (s *JSONStore) flushRoutes() error {
	return writeJSON(filepath.Join(s.dataDir, routesFile), s.routes)
}

// CreateEndpoint registers a new endpoint. Rolls back the in-memory
// mirror if the document fails to flush, so memory never diverges
// from disk.
func (s *JSONStore) CreateEndpoint(endpoint *types.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[endpoint.CN]; exists {
		return fmt.Errorf("endpoint already exists: %s", endpoint.CN)
	}

	s.endpoints[endpoint.CN] = endpoint
	if err := s.flushEndpoints(); err != nil {
		delete(s.endpoints, endpoint.CN)
		return err
	}
	return nil
}

func (s *JSONStore) GetEndpoint(cn string) (*types.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endpoint, ok := s.endpoints[cn]
	if !ok {
		return nil, fmt.Errorf("endpoint not found: %s", cn)
	}
	return endpoint, nil
}

func (s *JSONStore) ListEndpoints() ([]*types.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		out = append(out, e)
	}
	return out, nil
}

// DeleteEndpoint removes the endpoint and cascades: the CN is pruned
// from every zone's access list, and if it names a service, that
// service's route and every zone it owns are removed too. All of it
// is one in-memory transaction, flushed to all three documents before
// returning; on any flush failure the whole mutation is rolled back in
// memory and all three documents are rewritten from the restored state.
func (s *JSONStore) DeleteEndpoint(cn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint, ok := s.endpoints[cn]
	if !ok {
		return fmt.Errorf("endpoint not found: %s", cn)
	}

	prevEndpoints := cloneEndpoints(s.endpoints)
	prevZones := cloneZones(s.zones)
	prevRoutes := cloneRoutes(s.routes)

	delete(s.endpoints, cn)
	for _, zone := range s.zones {
		delete(zone.AccessList, cn)
	}
	if endpoint.Role == types.RoleService {
		delete(s.routes, cn)
		for name, zone := range s.zones {
			if zone.ServiceCN == cn {
				delete(s.zones, name)
			}
		}
	}

	if err := s.flushEndpoints(); err != nil {
		s.rollback(prevEndpoints, prevZones, prevRoutes)
		return err
	}
	if err := s.flushZones(); err != nil {
		s.rollback(prevEndpoints, prevZones, prevRoutes)
		return err
	}
	if err := s.flushRoutes(); err != nil {
		s.rollback(prevEndpoints, prevZones, prevRoutes)
		return err
	}

	log.WithComponent("store").Info().
		Str("cn", cn).
		Msg("endpoint deleted, references cascaded")
	return nil
}

func (s *JSONStore) rollback(endpoints map[string]*types.Endpoint, zones map[string]*types.Zone, routes map[string]*types.Route) {
	s.endpoints = endpoints
	s.zones = zones
	s.routes = routes
	_ = s.flushEndpoints()
	_ = s.flushZones()
	_ = s.flushRoutes()
}

func cloneEndpoints(m map[string]*types.Endpoint) map[string]*types.Endpoint {
	out := make(map[string]*types.Endpoint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneZones(m map[string]*types.Zone) map[string]*types.Zone {
	out := make(map[string]*types.Zone, len(m))
	for k, v := range m {
		accessList := make(map[string]bool, len(v.AccessList))
		for cn, ok := range v.AccessList {
			accessList[cn] = ok
		}
		cp := *v
		cp.AccessList = accessList
		out[k] = &cp
	}
	return out
}

func cloneRoutes(m map[string]*types.Route) map[string]*types.Route {
	out := make(map[string]*types.Route, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CreateZone registers a new zone. If ServiceCN is set, the
// referenced route must already exist.
func (s *JSONStore) CreateZone(zone *types.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := normalizeZoneName(zone.Name)
	zone.Name = name

	if _, exists := s.zones[name]; exists {
		return fmt.Errorf("zone already exists: %s", name)
	}
	if zone.ServiceCN != "" {
		if _, exists := s.routes[zone.ServiceCN]; !exists {
			return fmt.Errorf("zone references unknown route: %s", zone.ServiceCN)
		}
	}
	if zone.AccessList == nil {
		zone.AccessList = make(map[string]bool)
	}

	s.zones[name] = zone
	if err := s.flushZones(); err != nil {
		delete(s.zones, name)
		return err
	}
	return nil
}

func (s *JSONStore) GetZone(name string) (*types.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zone, ok := s.zones[normalizeZoneName(name)]
	if !ok {
		return nil, fmt.Errorf("zone not found: %s", name)
	}
	return zone, nil
}

func (s *JSONStore) ListZones() ([]*types.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	return out, nil
}

func (s *JSONStore) DeleteZone(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = normalizeZoneName(name)
	zone, ok := s.zones[name]
	if !ok {
		return fmt.Errorf("zone not found: %s", name)
	}

	delete(s.zones, name)
	if err := s.flushZones(); err != nil {
		s.zones[name] = zone
		return err
	}
	return nil
}

func (s *JSONStore) AuthorizeEndpoint(zoneName, cn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zoneName = normalizeZoneName(zoneName)
	zone, ok := s.zones[zoneName]
	if !ok {
		return fmt.Errorf("zone not found: %s", zoneName)
	}
	if _, ok := s.endpoints[cn]; !ok {
		return fmt.Errorf("endpoint not found: %s", cn)
	}

	already := zone.AccessList[cn]
	zone.AccessList[cn] = true
	if err := s.flushZones(); err != nil {
		if !already {
			delete(zone.AccessList, cn)
		}
		return err
	}
	return nil
}

func (s *JSONStore) DeauthorizeEndpoint(zoneName, cn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zoneName = normalizeZoneName(zoneName)
	zone, ok := s.zones[zoneName]
	if !ok {
		return fmt.Errorf("zone not found: %s", zoneName)
	}

	had := zone.AccessList[cn]
	delete(zone.AccessList, cn)
	if err := s.flushZones(); err != nil {
		if had {
			zone.AccessList[cn] = true
		}
		return err
	}
	return nil
}

// FindZoneForName returns the longest zone Z such that name equals Z
// or is a subdomain of Z. This is a fast-path read used by both the
// resolver and the proxy, so it takes only a read lock; it returns a
// copy of the zone with its own access list, so callers can read it
// after the lock is released.
func (s *JSONStore) FindZoneForName(name string) (*types.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name = normalizeZoneName(name)

	var best *types.Zone
	var bestLen int
	for zoneName, zone := range s.zones {
		if name == zoneName || strings.HasSuffix(name, "."+zoneName) {
			if len(zoneName) > bestLen {
				best = zone
				bestLen = len(zoneName)
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	cp.AccessList = make(map[string]bool, len(best.AccessList))
	for cn, ok := range best.AccessList {
		cp.AccessList[cn] = ok
	}
	return &cp, nil
}

// CreateRoute registers a new route. The referenced service endpoint
// must already exist and be service-role.
func (s *JSONStore) CreateRoute(route *types.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint, ok := s.endpoints[route.ServiceCN]
	if !ok {
		return fmt.Errorf("route references unknown endpoint: %s", route.ServiceCN)
	}
	if endpoint.Role != types.RoleService {
		return fmt.Errorf("route references non-service endpoint: %s", route.ServiceCN)
	}
	if _, exists := s.routes[route.ServiceCN]; exists {
		return fmt.Errorf("route already exists for: %s", route.ServiceCN)
	}

	s.routes[route.ServiceCN] = route
	if err := s.flushRoutes(); err != nil {
		delete(s.routes, route.ServiceCN)
		return err
	}
	return nil
}

func (s *JSONStore) GetRoute(serviceCN string) (*types.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route, ok := s.routes[serviceCN]
	if !ok {
		return nil, fmt.Errorf("route not found: %s", serviceCN)
	}
	return route, nil
}

func (s *JSONStore) ListRoutes() ([]*types.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, r)
	}
	return out, nil
}

func (s *JSONStore) DeleteRoute(serviceCN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[serviceCN]
	if !ok {
		return fmt.Errorf("route not found: %s", serviceCN)
	}

	delete(s.routes, serviceCN)
	if err := s.flushRoutes(); err != nil {
		s.routes[serviceCN] = route
		return err
	}
	return nil
}

// Close is a no-op for the JSON store; every mutation is already
// flushed synchronously.
func (s *JSONStore) Close() error {
	return nil
}
