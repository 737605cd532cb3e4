package types

import "time"

// Role distinguishes client endpoints (people, laptops, apps) from
// service endpoints (backend-owning processes).
type Role string

const (
	RoleClient  Role = "client"
	RoleService Role = "service"
)

// RecordType is a supported private-zone record type.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeCNAME RecordType = "CNAME"
)

// Endpoint is the identity of a peer authorized to use the gateway,
// identified solely by the CN embedded in its client certificate.
type Endpoint struct {
	CN        string    `json:"cn"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	// Domains this endpoint is entitled to serve. Empty for clients;
	// populated for services when CreateService registers the backend.
	Domains []string `json:"domains,omitempty"`
}

// Record is a single resource record within a zone label's record set.
type Record struct {
	Type  RecordType `json:"type"`
	Value string     `json:"value"`
}

// Zone is an authoritative private DNS zone. Name is normalized
// (lower-case, no trailing dot) before it is ever used as a map key.
type Zone struct {
	Name string `json:"name"`
	// Records maps a label ("@" for the zone apex, "*" for wildcard)
	// to the short list of records answered for that label.
	Records map[string][]Record `json:"records"`
	// ServiceCN is the owning service endpoint, or "" for a zone with no
	// owning service. Either way, DNS answers come only from Records; a
	// zone with no ServiceCN has no route for the proxy to tunnel to.
	ServiceCN string `json:"service_cn,omitempty"`
	// AccessList is the set of endpoint CNs permitted to query and
	// tunnel to this zone.
	AccessList map[string]bool `json:"access_list"`
}

// Route maps a service endpoint to its real backend. Keyed by the
// service's CN.
type Route struct {
	ServiceCN   string   `json:"service_cn"`
	BackendHost string   `json:"backend_host"`
	BackendPort int      `json:"backend_port"`
	Domains     []string `json:"domains"`
	Name        string   `json:"name"`
}

// SignedConfigPayload is the JSON document embedded in a signed
// configuration token (see pkg/security).
type SignedConfigPayload struct {
	Server     string    `json:"server"`      // gateway DoT address, host:853
	Proxy      string    `json:"proxy"`       // gateway tunnel address, host:8443
	ServerName string    `json:"server_name"` // expected TLS server name
	Type       Role      `json:"type"`
	Domains    []string  `json:"domains,omitempty"`
	Expires    time.Time `json:"expires"`
}
