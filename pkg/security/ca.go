package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/cuemby/ztgateway/pkg/types"
)

const (
	// CA and endpoint certificates are both long-lived; the gateway has
	// no revocation mechanism, so short validity windows would only add
	// an operational burden without a corresponding safety benefit.
	caValidity       = 10 * 365 * 24 * time.Hour
	endpointValidity = 10 * 365 * 24 * time.Hour

	caKeySize       = 4096
	endpointKeySize = 4096

	caCommonName = "ZeroTrust CA"
)

// CA is the gateway's certificate authority: a single self-signed root
// that issues and verifies every endpoint and server certificate.
type CA struct {
	mu sync.RWMutex

	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey

	serverCert *tls.Certificate

	dir string
}

// LoadOrCreateCA loads CA material from dir, generating it on first run.
func LoadOrCreateCA(dir string) (*CA, error) {
	ca := &CA{dir: dir}

	cert, key, err := loadCAFiles(dir)
	if err == nil {
		ca.rootCert = cert
		ca.rootKey = key
		return ca, nil
	}
	if !isNotExist(err) {
		return nil, fmt.Errorf("load CA material: %w", err)
	}

	if err := ca.bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap CA: %w", err)
	}
	if err := saveCAFiles(dir, ca.rootCert, ca.rootKey); err != nil {
		return nil, fmt.Errorf("persist CA material: %w", err)
	}
	return ca, nil
}

func (ca *CA) bootstrap() error {
	rootKey, err := rsa.GenerateKey(rand.Reader, caKeySize)
	if err != nil {
		return fmt.Errorf("generate root key: %w", err)
	}

	serial, err := randSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: caCommonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("self-sign root certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// EnsureServerCertificate loads the gateway's own server certificate
// from disk, regenerating it (signed by the CA) if absent or if its SAN
// list does not include externalAddr.
func (ca *CA) EnsureServerCertificate(externalAddr string) (*tls.Certificate, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	cert, err := loadServerCert(ca.dir)
	if err == nil && serverCertCoversAddress(cert, externalAddr) {
		ca.serverCert = cert
		return cert, nil
	}
	if err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	tlsCert, err := ca.issueServerCertificate(externalAddr)
	if err != nil {
		return nil, fmt.Errorf("issue server certificate: %w", err)
	}
	if err := saveServerCert(ca.dir, tlsCert); err != nil {
		return nil, fmt.Errorf("persist server certificate: %w", err)
	}
	ca.serverCert = tlsCert
	return tlsCert, nil
}

func (ca *CA) issueServerCertificate(externalAddr string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, endpointKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}

	serial, err := randSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "ZeroTrust Gateway",
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(endpointValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	addSAN(template, externalAddr)

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &key.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("sign server certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse server certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func serverCertCoversAddress(cert *tls.Certificate, addr string) bool {
	if cert.Leaf == nil {
		return false
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, certIP := range cert.Leaf.IPAddresses {
			if certIP.Equal(ip) {
				return true
			}
		}
		return false
	}
	for _, name := range cert.Leaf.DNSNames {
		if name == host {
			return true
		}
	}
	return false
}

func addSAN(template *x509.Certificate, addr string) {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if host == "" {
		return
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
		return
	}
	template.DNSNames = append(template.DNSNames, host)
}

// IssuedCertificate bundles the material returned by endpoint issuance.
type IssuedCertificate struct {
	CN      string
	Cert    *x509.Certificate
	CertDER []byte
	Key     *rsa.PrivateKey
}

// IssueEndpointCertificate generates a fresh key pair and a certificate
// signed by the CA for the given role, using the c<hex>/s<hex> CN scheme.
func (ca *CA) IssueEndpointCertificate(role types.Role, friendlyName string) (*IssuedCertificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	cn, err := newCN(role)
	if err != nil {
		return nil, err
	}

	key, err := rsa.GenerateKey(rand.Reader, endpointKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate endpoint key: %w", err)
	}

	serial, err := randSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{fmt.Sprintf("%s-%s", role, friendlyName)},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(endpointValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &key.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("sign endpoint certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint certificate: %w", err)
	}

	return &IssuedCertificate{CN: cn, Cert: leaf, CertDER: certDER, Key: key}, nil
}

// newCN derives a CN of the form c<12 hex> or s<12 hex>.
func newCN(role types.Role) (string, error) {
	prefix := "c"
	if role == types.RoleService {
		prefix = "s"
	}
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate CN suffix: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

// CertPool returns an x509.CertPool containing only the root CA
// certificate, the single trust anchor for every mTLS listener.
func (ca *CA) CertPool() *x509.CertPool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	pool := x509.NewCertPool()
	pool.AddCert(ca.rootCert)
	return pool
}

// RootCertificate returns the CA's own certificate.
func (ca *CA) RootCertificate() *x509.Certificate {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert
}

// RootKey returns the CA's private signing key, used by the
// signed-configuration module to produce detached signatures.
func (ca *CA) RootKey() *rsa.PrivateKey {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootKey
}

// VerifyPeerCertificate verifies cert chains to the CA for either
// client or server use, matching the single-trust-anchor model.
func (ca *CA) VerifyPeerCertificate(cert *x509.Certificate, usage x509.ExtKeyUsage) error {
	opts := x509.VerifyOptions{
		Roots:     ca.CertPool(),
		KeyUsages: []x509.ExtKeyUsage{usage},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("verify certificate: %w", err)
	}
	return nil
}

func randSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serial, nil
}
