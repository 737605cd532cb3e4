// Package config loads the gateway's YAML configuration file: listen
// addresses for the two mTLS services, the externally-visible gateway
// address used for server-certificate SANs and signed bundles, the
// upstream resolver consulted for non-private zones, and the data
// directory holding CA material and the JSON entity store.
package config
