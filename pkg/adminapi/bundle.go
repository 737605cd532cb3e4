package adminapi

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/security"
	"github.com/cuemby/ztgateway/pkg/types"
)

// buildBundle assembles the deployment archive handed to a newly
// provisioned endpoint: its certificate and key, the CA certificate, a
// signed-configuration token, and (when available) the endpoint binary
// for its platform.
func (a *API) buildBundle(endpoint *types.Endpoint, issued *security.IssuedCertificate, domains []string) ([]byte, error) {
	ttl := a.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	payload := types.SignedConfigPayload{
		Server:     a.cfg.DNSAddr,
		Proxy:      a.cfg.ProxyAddr,
		ServerName: a.cfg.ServerName,
		Type:       endpoint.Role,
		Domains:    domains,
		Expires:    time.Now().Add(ttl),
	}
	token, err := security.SignConfig(a.ca.RootKey(), payload)
	if err != nil {
		return nil, fmt.Errorf("sign configuration token: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := addZipFile(zw, "endpoint.crt", security.EncodeCertificatePEM(issued.CertDER)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "endpoint.key", security.EncodeKeyPEM(issued.Key)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "ca.crt", security.EncodeCertificatePEM(a.ca.RootCertificate().Raw)); err != nil {
		return nil, err
	}
	if err := addZipFile(zw, "config.zt", []byte(token)); err != nil {
		return nil, err
	}

	if binary, name, ok := a.loadPlatformBinary(endpoint.Platform); ok {
		if err := addZipFile(zw, name, binary); err != nil {
			return nil, err
		}
	} else {
		log.WithComponent("adminapi").Warn().Str("platform", endpoint.Platform).
			Msg("no endpoint binary found for platform, bundle omits it")
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close bundle archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s in bundle: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s in bundle: %w", name, err)
	}
	return nil
}

func (a *API) loadPlatformBinary(platform string) ([]byte, string, bool) {
	if a.cfg.BinaryDir == "" || platform == "" {
		return nil, "", false
	}
	name := "endpoint-" + platform
	if filepath.Ext(platform) == "" && platform == "windows-amd64" {
		name += ".exe"
	}
	data, err := os.ReadFile(filepath.Join(a.cfg.BinaryDir, name))
	if err != nil {
		return nil, "", false
	}
	return data, name, true
}
