// Package proxy implements the gateway's mutually-authenticated TLS
// transport proxy (port 8443): it terminates client connections,
// sniffs a destination hostname from the first bytes of the stream,
// authorizes the connection against the matching zone's access list,
// and tunnels the remaining bytes to the backend named by that zone's
// route. Beyond the initial hostname sniff, the proxy is protocol
// agnostic: no payload is inspected, buffered, or rewritten.
package proxy
