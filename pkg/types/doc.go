// Package types defines the gateway's data model: endpoints, zones,
// routes, and the signed-configuration payload shared with endpoints.
//
// Endpoint, Zone, and Route are the three entities persisted by
// pkg/storage. Every cross-reference between them (a zone's access
// list, a zone's service_cn, a route's service_cn) is a bare CN
// string rather than a pointer, since all three are independently
// loaded from disk and kept in separate maps.
package types
