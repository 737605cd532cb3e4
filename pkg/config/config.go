package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's top-level configuration, loaded from YAML
// and overridable by CLI flags.
type Config struct {
	// DataDir holds certs/ and data/ (CA material and the JSON store).
	DataDir string `yaml:"data_dir"`

	// ExternalAddress is the gateway's externally-visible address
	// (host or host:port); used for server-certificate SANs and for the
	// DNS and proxy addresses written into signed bundles. It is not
	// used in DNS answers: private-zone answers come only from zone
	// records.
	ExternalAddress string `yaml:"external_address"`

	// DNSListen is the DoT listener address, e.g. "0.0.0.0:853".
	DNSListen string `yaml:"dns_listen"`

	// ProxyListen is the TLS transport-proxy listener address, e.g.
	// "0.0.0.0:8443".
	ProxyListen string `yaml:"proxy_listen"`

	// AdminListen is the administrative HTTP API listener address.
	AdminListen string `yaml:"admin_listen"`

	// MetricsListen serves Prometheus metrics, independent of the two
	// mTLS listeners.
	MetricsListen string `yaml:"metrics_listen"`

	// UpstreamDNS is the public resolver consulted when a query does
	// not match any private zone.
	UpstreamDNS string `yaml:"upstream_dns"`

	// UpstreamTimeout bounds the upstream forward.
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Config with the gateway's documented defaults.
func Default() Config {
	return Config{
		DataDir:         "/var/lib/ztgateway",
		DNSListen:       "0.0.0.0:853",
		ProxyListen:     "0.0.0.0:8443",
		AdminListen:     "127.0.0.1:5001",
		MetricsListen:   "127.0.0.1:9090",
		UpstreamDNS:     "1.1.1.1:53",
		UpstreamTimeout: 2 * time.Second,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads and parses a YAML configuration file, starting from
// Default() so that any field the file omits keeps its default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects a configuration missing the fields every gateway
// component depends on.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ExternalAddress == "" {
		return fmt.Errorf("external_address must not be empty")
	}
	if c.DNSListen == "" || c.ProxyListen == "" {
		return fmt.Errorf("dns_listen and proxy_listen must not be empty")
	}
	return nil
}
