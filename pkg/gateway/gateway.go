package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/cuemby/ztgateway/pkg/adminapi"
	"github.com/cuemby/ztgateway/pkg/config"
	"github.com/cuemby/ztgateway/pkg/dns"
	"github.com/cuemby/ztgateway/pkg/events"
	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/metrics"
	"github.com/cuemby/ztgateway/pkg/proxy"
	"github.com/cuemby/ztgateway/pkg/security"
	"github.com/cuemby/ztgateway/pkg/storage"
)

// Gateway wires together every long-running component of the process.
type Gateway struct {
	cfg config.Config

	store  storage.Store
	ca     *security.CA
	broker *events.Broker
	admin  *adminapi.API

	dnsServer   *dns.Server
	proxyServer *proxy.Server

	adminHTTP   *http.Server
	metricsHTTP *http.Server
}

// New loads (or bootstraps) the CA and store under cfg.DataDir and wires
// every component together. It does not start any listener.
func New(cfg config.Config) (*Gateway, error) {
	store, err := storage.NewJSONStore(filepath.Join(cfg.DataDir, "data"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ca, err := security.LoadOrCreateCA(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load CA: %w", err)
	}

	broker := events.NewBroker()

	admin := adminapi.New(store, ca, broker, adminapi.Config{
		DataDir:    cfg.DataDir,
		DNSAddr:    addrWithPort(cfg.ExternalAddress, cfg.DNSListen),
		ProxyAddr:  addrWithPort(cfg.ExternalAddress, cfg.ProxyListen),
		ServerName: hostOnly(cfg.ExternalAddress),
		TokenTTL:   24 * time.Hour,
	})

	return &Gateway{
		cfg:         cfg,
		store:       store,
		ca:          ca,
		broker:      broker,
		admin:       admin,
		dnsServer:   dns.NewServer(store, ca, broker, cfg.DNSListen, cfg.UpstreamDNS, cfg.UpstreamTimeout),
		proxyServer: proxy.NewServer(store, ca, broker, cfg.ProxyListen),
	}, nil
}

// Start brings up every listener. It blocks until ctx is canceled, then
// tears everything down and returns.
func (g *Gateway) Start(ctx context.Context) error {
	logger := log.WithComponent("gateway")

	g.broker.Start()
	metrics.RegisterComponent("ca", true, "bootstrapped")
	metrics.RegisterComponent("store", true, "loaded")

	serverCert, err := g.ca.EnsureServerCertificate(g.cfg.ExternalAddress)
	if err != nil {
		return fmt.Errorf("ensure server certificate: %w", err)
	}

	errCh := make(chan error, 4)

	go func() {
		if err := g.dnsServer.Start(ctx, serverCert); err != nil {
			errCh <- fmt.Errorf("dns server: %w", err)
		}
	}()
	metrics.RegisterComponent("dns", true, "listening on "+g.cfg.DNSListen)
	logger.Info().Str("addr", g.cfg.DNSListen).Msg("DNS-over-TLS listener started")

	go func() {
		if err := g.proxyServer.Start(ctx, serverCert); err != nil {
			errCh <- fmt.Errorf("proxy server: %w", err)
		}
	}()
	metrics.RegisterComponent("proxy", true, "listening on "+g.cfg.ProxyListen)
	logger.Info().Str("addr", g.cfg.ProxyListen).Msg("transport proxy listener started")

	g.adminHTTP = &http.Server{Addr: g.cfg.AdminListen, Handler: g.admin.Handler()}
	go func() {
		if err := g.adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin API server: %w", err)
		}
	}()
	logger.Info().Str("addr", g.cfg.AdminListen).Msg("administrative API started")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.Handle("/health", metrics.HealthHandler())
	metricsMux.Handle("/ready", metrics.ReadyHandler())
	metricsMux.Handle("/live", metrics.LivenessHandler())
	g.metricsHTTP = &http.Server{Addr: g.cfg.MetricsListen, Handler: metricsMux}
	go func() {
		if err := g.metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	logger.Info().Str("addr", g.cfg.MetricsListen).Msg("metrics and health endpoints started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("component failed, shutting down")
		g.Stop()
		return err
	}

	return g.Stop()
}

// Stop tears down every listener and closes the store.
func (g *Gateway) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if g.adminHTTP != nil {
		_ = g.adminHTTP.Shutdown(shutdownCtx)
	}
	if g.metricsHTTP != nil {
		_ = g.metricsHTTP.Shutdown(shutdownCtx)
	}
	_ = g.dnsServer.Stop()
	_ = g.proxyServer.Stop()
	g.broker.Stop()
	return g.store.Close()
}

func addrWithPort(externalAddr, listenAddr string) string {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return externalAddr
	}
	host := hostOnly(externalAddr)
	return net.JoinHostPort(host, port)
}

func hostOnly(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
