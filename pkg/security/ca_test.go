package security

import (
	"crypto/x509"
	"os"
	"testing"

	"github.com/cuemby/ztgateway/pkg/types"
)

func TestLoadOrCreateCABootstraps(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-ca-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	ca, err := LoadOrCreateCA(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateCA: %v", err)
	}

	if ca.RootCertificate() == nil || ca.RootKey() == nil {
		t.Fatal("CA should have root cert and key after bootstrap")
	}
	if !ca.RootCertificate().IsCA {
		t.Error("root certificate should be a CA")
	}
	if ca.RootCertificate().Subject.CommonName != caCommonName {
		t.Errorf("unexpected root CN: %s", ca.RootCertificate().Subject.CommonName)
	}

	if _, err := os.Stat(certsSubdir(dir) + "/ca.crt"); err != nil {
		t.Errorf("ca.crt not persisted: %v", err)
	}
	if _, err := os.Stat(certsSubdir(dir) + "/ca.key"); err != nil {
		t.Errorf("ca.key not persisted: %v", err)
	}
}

func TestLoadOrCreateCAReloadsSameRoot(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-ca-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	first, err := LoadOrCreateCA(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateCA: %v", err)
	}

	second, err := LoadOrCreateCA(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateCA reload: %v", err)
	}

	if !first.RootCertificate().Equal(second.RootCertificate()) {
		t.Error("reloaded CA should have the same root certificate")
	}
}

func TestIssueEndpointCertificateCNScheme(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-ca-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	ca, err := LoadOrCreateCA(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateCA: %v", err)
	}

	client, err := ca.IssueEndpointCertificate(types.RoleClient, "alice")
	if err != nil {
		t.Fatalf("issue client cert: %v", err)
	}
	if len(client.CN) != 13 || client.CN[0] != 'c' {
		t.Errorf("client CN %q does not match c<12 hex> scheme", client.CN)
	}

	service, err := ca.IssueEndpointCertificate(types.RoleService, "pg-prod")
	if err != nil {
		t.Fatalf("issue service cert: %v", err)
	}
	if len(service.CN) != 13 || service.CN[0] != 's' {
		t.Errorf("service CN %q does not match s<12 hex> scheme", service.CN)
	}

	if err := ca.VerifyPeerCertificate(client.Cert, x509.ExtKeyUsageClientAuth); err != nil {
		t.Errorf("issued client cert should verify against the CA: %v", err)
	}
}

func TestEnsureServerCertificateRegeneratesOnAddressChange(t *testing.T) {
	dir, err := os.MkdirTemp("", "ztgateway-ca-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	ca, err := LoadOrCreateCA(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateCA: %v", err)
	}

	first, err := ca.EnsureServerCertificate("gw.example.com:853")
	if err != nil {
		t.Fatalf("EnsureServerCertificate: %v", err)
	}

	same, err := ca.EnsureServerCertificate("gw.example.com:853")
	if err != nil {
		t.Fatalf("EnsureServerCertificate (no change): %v", err)
	}
	if !first.Leaf.Equal(same.Leaf) {
		t.Error("server certificate should not be regenerated when the address is unchanged")
	}

	changed, err := ca.EnsureServerCertificate("new.example.com:853")
	if err != nil {
		t.Fatalf("EnsureServerCertificate (changed): %v", err)
	}
	if first.Leaf.Equal(changed.Leaf) {
		t.Error("server certificate should be regenerated when the address changes")
	}
	if !serverCertCoversAddress(changed, "new.example.com") {
		t.Error("regenerated certificate should cover the new address")
	}
}
