package security

import (
	"os"
	"testing"

	"github.com/cuemby/ztgateway/pkg/types"
)

func TestEndpointCertificateRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-certs-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	ca, err := LoadOrCreateCA(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateCA: %v", err)
	}

	issued, err := ca.IssueEndpointCertificate(types.RoleClient, "alice")
	if err != nil {
		t.Fatalf("issue endpoint cert: %v", err)
	}

	if err := SaveEndpointCertificate(dir, issued.CN, issued.CertDER, issued.Key); err != nil {
		t.Fatalf("SaveEndpointCertificate: %v", err)
	}

	loaded, err := LoadEndpointCertificate(dir, issued.CN)
	if err != nil {
		t.Fatalf("LoadEndpointCertificate: %v", err)
	}
	if !loaded.Leaf.Equal(issued.Cert) {
		t.Error("loaded certificate should match the issued certificate")
	}

	if err := RemoveEndpointCertificate(dir, issued.CN); err != nil {
		t.Fatalf("RemoveEndpointCertificate: %v", err)
	}
	if _, err := LoadEndpointCertificate(dir, issued.CN); err == nil {
		t.Error("certificate should be gone after removal")
	}
}

func TestRemoveEndpointCertificateMissingIsNotError(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-certs-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	if err := RemoveEndpointCertificate(dir, "cdoesnotexist"); err != nil {
		t.Errorf("removing a non-existent certificate should be a no-op: %v", err)
	}
}
