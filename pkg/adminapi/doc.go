/*
Package adminapi implements the gateway's administrative control plane: CRUD
over endpoints, zones, and routes, plus deployment-bundle assembly for newly
provisioned endpoints.

It is the only component that mutates pkg/storage on behalf of an operator
(the resolver and proxy only read it) and the only component that calls
pkg/security's issuance and signing entry points. Every mutation also
publishes a pkg/events notification, and creations and standalone zone or
route deletions update pkg/metrics counters (authorize, deauthorize, and
endpoint deletion do not), so the admin API is the seam where inventory,
security, and observability meet.

Package http.go exposes these operations over net/http as a thin JSON
transport; package bundle.go assembles the zip archive handed to a newly
created endpoint.
*/
package adminapi
