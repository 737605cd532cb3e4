/*
Package metrics provides Prometheus metrics collection and exposition for the
gateway, plus the liveness/readiness/health HTTP handlers used by operators
and orchestrators.

Metrics are registered at package init against the default Prometheus
registry and exposed for scraping via Handler(), normally mounted on the
internal metrics listener alongside the health endpoints.

# Categories

Inventory: endpoints, zones, and routes currently held in the store, and
certificates issued by the CA, broken down by role.

DNS: query outcomes (private zone answer, forwarded upstream, refused,
SERVFAIL, FORMERR), query latency, and accepted connection count.

Proxy: tunnels opened per zone, tunnels currently active, bytes transferred
per direction, and connections dropped before a tunnel was established,
broken down by drop reason.

Admin API: request count and latency by method and status, and bundles
issued to clients.

# Health

HealthChecker tracks named components (ca, store, dns, proxy, ...) and
exposes /health, /ready, and /live handlers. Readiness additionally checks
that every component on the critical list has been registered as healthy;
liveness only reports that the process is running.
*/
package metrics
