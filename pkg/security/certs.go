package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	certDirPerm  = 0700
	keyFilePerm  = 0600
	certFilePerm = 0644
)

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func certsSubdir(dataDir string) string {
	return filepath.Join(dataDir, "certs")
}

func loadCAFiles(dataDir string) (*x509.Certificate, *rsa.PrivateKey, error) {
	dir := certsSubdir(dataDir)
	cert, err := loadCertPEM(filepath.Join(dir, "ca.crt"))
	if err != nil {
		return nil, nil, err
	}
	key, err := loadKeyPEM(filepath.Join(dir, "ca.key"))
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func saveCAFiles(dataDir string, cert *x509.Certificate, key *rsa.PrivateKey) error {
	dir := certsSubdir(dataDir)
	if err := os.MkdirAll(dir, certDirPerm); err != nil {
		return fmt.Errorf("create cert directory: %w", err)
	}
	if err := writeCertPEM(filepath.Join(dir, "ca.crt"), cert.Raw); err != nil {
		return err
	}
	return writeKeyPEM(filepath.Join(dir, "ca.key"), key)
}

func loadServerCert(dataDir string) (*tls.Certificate, error) {
	dir := certsSubdir(dataDir)
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"))
	if err != nil {
		if isNotExist(unwrapPathError(err)) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parse server certificate: %w", err)
		}
		cert.Leaf = leaf
	}
	return &cert, nil
}

func saveServerCert(dataDir string, cert *tls.Certificate) error {
	dir := certsSubdir(dataDir)
	if err := os.MkdirAll(dir, certDirPerm); err != nil {
		return fmt.Errorf("create cert directory: %w", err)
	}
	if err := writeCertPEM(filepath.Join(dir, "server.crt"), cert.Certificate[0]); err != nil {
		return err
	}
	key, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("server private key is not RSA")
	}
	return writeKeyPEM(filepath.Join(dir, "server.key"), key)
}

// SaveEndpointCertificate persists the certificate and key issued for
// cn under dataDir/certs/<cn>.{crt,key}.
func SaveEndpointCertificate(dataDir, cn string, certDER []byte, key *rsa.PrivateKey) error {
	dir := certsSubdir(dataDir)
	if err := os.MkdirAll(dir, certDirPerm); err != nil {
		return fmt.Errorf("create cert directory: %w", err)
	}
	if err := writeCertPEM(filepath.Join(dir, cn+".crt"), certDER); err != nil {
		return err
	}
	return writeKeyPEM(filepath.Join(dir, cn+".key"), key)
}

// LoadEndpointCertificate reads back a previously issued endpoint
// certificate and key pair.
func LoadEndpointCertificate(dataDir, cn string) (*tls.Certificate, error) {
	dir := certsSubdir(dataDir)
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, cn+".crt"), filepath.Join(dir, cn+".key"))
	if err != nil {
		return nil, fmt.Errorf("load endpoint certificate: %w", err)
	}
	return &cert, nil
}

// RemoveEndpointCertificate deletes the on-disk certificate and key for
// cn, called when an endpoint is deleted.
func RemoveEndpointCertificate(dataDir, cn string) error {
	dir := certsSubdir(dataDir)
	if err := os.Remove(filepath.Join(dir, cn+".crt")); err != nil && !isNotExist(err) {
		return err
	}
	if err := os.Remove(filepath.Join(dir, cn+".key")); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// EncodeCertificatePEM returns the PEM encoding of a raw DER certificate,
// for embedding in a deployment bundle rather than a file on disk.
func EncodeCertificatePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// EncodeKeyPEM returns the PEM encoding of an RSA private key, for
// embedding in a deployment bundle rather than a file on disk.
func EncodeKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func writeCertPEM(path string, der []byte) error {
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, block, certFilePerm); err != nil {
		return fmt.Errorf("write certificate %s: %w", path, err)
	}
	return nil
}

func writeKeyPEM(path string, key *rsa.PrivateKey) error {
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, block, keyFilePerm); err != nil {
		return fmt.Errorf("write private key %s: %w", path, err)
	}
	return nil
}

func loadCertPEM(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("decode certificate PEM %s: %w", path, errInvalidPEM)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate %s: %w", path, err)
	}
	return cert, nil
}

func loadKeyPEM(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("decode private key PEM %s: %w", path, errInvalidPEM)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return key, nil
}

func unwrapPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

var errInvalidPEM = errors.New("invalid PEM block")
