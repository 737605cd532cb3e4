// Package dns implements the gateway's DNS-over-TLS resolver (RFC
// 7858): a mutually-authenticated TCP-TLS listener on port 853 that
// answers private-zone queries against the authenticated peer's access
// list and forwards everything else to a public upstream over plain
// UDP.
//
// Each connection carries exactly one query/response exchange; there
// is no query pipelining. An unknown peer CN is dropped before any
// message is read. An authenticated peer querying a zone it is not
// authorized for receives REFUSED rather than any indication the zone
// exists.
package dns
