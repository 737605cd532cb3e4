/*
Package gateway wires the CA, store, resolver, proxy, administrative API,
and metrics/health endpoints into a single running process.

It owns no logic of its own beyond lifecycle: EnsureServerCertificate is
called once at startup, then the DNS-over-TLS listener, the transport-proxy
listener, the administrative HTTP API, and the metrics/health HTTP server
are each started on their own goroutine. Stop shuts down the admin and
metrics HTTP servers, then the DNS and proxy listeners, then the event
broker, and closes the underlying store last.
*/
package gateway
