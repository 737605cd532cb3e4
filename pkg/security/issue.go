package security

import (
	"fmt"
	"time"

	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/cuemby/ztgateway/pkg/types"
)

// IssueAndRegister issues a certificate for role/friendlyName, registers
// the resulting endpoint in store, and persists the certificate material
// under dataDir, treating the three as one unit: a certificate with no
// matching store entry (or a store entry with no certificate on disk)
// would let a CN authenticate as an identity the rest of the system can't
// account for, so any failure after the certificate is issued unwinds the
// steps that already succeeded before returning the error.
func IssueAndRegister(ca *CA, store storage.Store, dataDir string, role types.Role, friendlyName, platform string, domains []string) (*IssuedCertificate, *types.Endpoint, error) {
	issued, err := ca.IssueEndpointCertificate(role, friendlyName)
	if err != nil {
		return nil, nil, fmt.Errorf("issue certificate: %w", err)
	}

	endpoint := &types.Endpoint{
		CN:        issued.CN,
		Name:      friendlyName,
		Role:      role,
		Platform:  platform,
		CreatedAt: time.Now(),
		Domains:   domains,
	}

	if err := store.CreateEndpoint(endpoint); err != nil {
		return nil, nil, fmt.Errorf("register endpoint: %w", err)
	}

	if err := SaveEndpointCertificate(dataDir, issued.CN, issued.CertDER, issued.Key); err != nil {
		_ = RemoveEndpointCertificate(dataDir, issued.CN)
		if delErr := store.DeleteEndpoint(issued.CN); delErr != nil {
			return nil, nil, fmt.Errorf("persist certificate: %w (rollback of store entry also failed: %v)", err, delErr)
		}
		return nil, nil, fmt.Errorf("persist certificate: %w", err)
	}

	return issued, endpoint, nil
}
