package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/ztgateway/pkg/events"
	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/metrics"
	"github.com/cuemby/ztgateway/pkg/security"
	"github.com/cuemby/ztgateway/pkg/storage"
)

const dialTimeout = 5 * time.Second

// Server is the mutually-authenticated TLS transport proxy listening
// on port 8443. Each accepted connection is handled by its own task
// and owns exactly two sockets for its lifetime.
type Server struct {
	store  storage.Store
	ca     *security.CA
	router *Router
	broker *events.Broker

	listenAddr string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a transport proxy server. broker may be nil, in
// which case tunnel open/close events are simply not published.
func NewServer(store storage.Store, ca *security.CA, broker *events.Broker, listenAddr string) *Server {
	return &Server{
		store:      store,
		ca:         ca,
		router:     NewRouter(store),
		broker:     broker,
		listenAddr: listenAddr,
	}
}

func (s *Server) publish(t events.EventType, msg string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{Type: t, Message: msg})
}

// Start accepts connections until ctx is cancelled or Stop is called.
// It blocks until the listener is closed.
func (s *Server) Start(ctx context.Context, serverCert *tls.Certificate) error {
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{*serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    s.ca.CertPool(),
		MinVersion:   tls.VersionTLS12,
	}

	ln, err := tls.Listen("tcp", s.listenAddr, tlsCfg)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listenAddr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.WithComponent("proxy").Info().Str("address", s.listenAddr).Msg("transport proxy listener started")

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Stop closes the listener, unblocking Start. In-flight tunnels are
// unaffected; they unwind independently on their own I/O errors.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	logger := log.WithComponent("proxy")
	remote := conn.RemoteAddr().String()

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeoutProxy)); err != nil {
		conn.Close()
		return
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		logger.Debug().Err(err).Str("remote", remote).Msg("handshake failed")
		conn.Close()
		return
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return
	}

	peers := tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		conn.Close()
		return
	}
	cn := peers[0].Subject.CommonName

	if _, err := s.store.GetEndpoint(cn); err != nil {
		logger.Debug().Str("cn", cn).Str("remote", remote).Msg("unknown CN, dropping connection")
		metrics.TunnelDropsTotal.WithLabelValues("unknown_cn").Inc()
		conn.Close()
		return
	}

	knownZones, err := s.zoneNames()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list zones for hostname sniffing")
		conn.Close()
		return
	}

	hostname, peeked, err := sniffHostname(conn, knownZones)
	if err != nil {
		logger.Debug().Err(err).Str("cn", cn).Str("remote", remote).Msg("hostname discovery failed")
		metrics.TunnelDropsTotal.WithLabelValues("no_hostname").Inc()
		conn.Close()
		return
	}

	zoneName, route, err := s.router.Resolve(hostname, cn)
	if err != nil {
		logger.Debug().Err(err).Str("cn", cn).Str("hostname", hostname).Msg("routing failed")
		metrics.TunnelDropsTotal.WithLabelValues("unauthorized").Inc()
		conn.Close()
		return
	}

	backendAddr := net.JoinHostPort(route.BackendHost, fmt.Sprintf("%d", route.BackendPort))
	backend, err := net.DialTimeout("tcp", backendAddr, dialTimeout)
	if err != nil {
		logger.Warn().Err(err).Str("backend", backendAddr).Msg("backend dial failed")
		metrics.TunnelDropsTotal.WithLabelValues("dial_failed").Inc()
		conn.Close()
		return
	}

	logger.Info().Str("cn", cn).Str("hostname", hostname).Str("backend", backendAddr).Msg("tunnel opened")
	metrics.TunnelsOpenedTotal.WithLabelValues(zoneName).Inc()
	metrics.TunnelsActive.Inc()
	s.publish(events.EventTunnelOpened, fmt.Sprintf("tunnel opened for %s to %s (zone=%s)", cn, backendAddr, zoneName))

	err = tunnel(conn, backend, peeked)
	metrics.TunnelsActive.Dec()
	if err != nil {
		logger.Debug().Err(err).Str("cn", cn).Str("backend", backendAddr).Msg("tunnel closed")
	}
	s.publish(events.EventTunnelClosed, fmt.Sprintf("tunnel closed for %s to %s (zone=%s)", cn, backendAddr, zoneName))
}

func (s *Server) zoneNames() ([]string, error) {
	zones, err := s.store.ListZones()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(zones))
	for i, z := range zones {
		names[i] = z.Name
	}
	return names, nil
}

const handshakeTimeoutProxy = 10 * time.Second
