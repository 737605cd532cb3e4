package dns

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cuemby/ztgateway/pkg/events"
	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/metrics"
	"github.com/cuemby/ztgateway/pkg/security"
	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/miekg/dns"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 5 * time.Second
	maxMessageSize   = 4096

	// DefaultUpstream is the public resolver consulted for queries that
	// do not match a private zone.
	DefaultUpstream = "1.1.1.1:53"
	upstreamNetwork = "udp"
)

// Server is the mutually-authenticated DNS-over-TLS resolver listening
// on port 853. Every connection carries exactly one query exchange.
type Server struct {
	store    storage.Store
	ca       *security.CA
	resolver *Resolver
	broker   *events.Broker

	listenAddr      string
	upstream        string
	upstreamTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a DNS-over-TLS server. upstream and upstreamTimeout
// fall back to DefaultUpstream and 2s if zero-valued. broker may be
// nil, in which case refusal events are simply not published.
func NewServer(store storage.Store, ca *security.CA, broker *events.Broker, listenAddr, upstream string, upstreamTimeout time.Duration) *Server {
	if upstream == "" {
		upstream = DefaultUpstream
	}
	if upstreamTimeout == 0 {
		upstreamTimeout = 2 * time.Second
	}
	return &Server{
		store:           store,
		ca:              ca,
		resolver:        NewResolver(store),
		broker:          broker,
		listenAddr:      listenAddr,
		upstream:        upstream,
		upstreamTimeout: upstreamTimeout,
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

	log.WithComponent("dns").Info().Str("address", s.listenAddr).Msg("dns-over-tls listener started")

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

// Stop closes the listener, unblocking Start.
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
	defer conn.Close()
	logger := log.WithComponent("dns")

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("handshake failed")
		return
	}

	peers := tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return
	}
	cn := peers[0].Subject.CommonName

	if _, err := s.store.GetEndpoint(cn); err != nil {
		logger.Debug().Str("cn", cn).Str("remote", conn.RemoteAddr().String()).Msg("unknown CN, dropping connection")
		return
	}
	metrics.DNSConnectionsTotal.Inc()

	if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
		return
	}

	query, parseErr, readErr := readMessage(conn)
	if readErr != nil {
		logger.Debug().Err(readErr).Str("cn", cn).Msg("failed to read query")
		return
	}

	var resp *dns.Msg
	if parseErr != nil {
		logger.Debug().Err(parseErr).Str("cn", cn).Msg("failed to parse query")
		resp = new(dns.Msg)
		resp.Rcode = dns.RcodeFormatError
		metrics.DNSQueriesTotal.WithLabelValues("formerr").Inc()
	} else {
		timer := metrics.NewTimer()
		var result string
		resp, result = s.answer(query, cn)
		timer.ObserveDuration(metrics.DNSQueryDuration)
		metrics.DNSQueriesTotal.WithLabelValues(result).Inc()
		if result == "refused" {
			s.publish(events.EventDNSRefused, fmt.Sprintf("%s refused for %s", cn, queryName(query)))
		}
	}
	if resp == nil {
		return
	}

	if err := writeMessage(conn, resp); err != nil {
		logger.Debug().Err(err).Str("cn", cn).Msg("failed to write response")
	}
}

// answer resolves query on behalf of cn, returning the response
// alongside a result label ("private", "refused", "forwarded", or
// "servfail") for metrics/logging.
func (s *Server) answer(query *dns.Msg, cn string) (*dns.Msg, string) {
	resp, matched := s.resolver.Resolve(query, cn)
	if matched {
		if resp.Rcode == dns.RcodeRefused {
			return resp, "refused"
		}
		return resp, "private"
	}
	return s.forward(query)
}

func (s *Server) forward(query *dns.Msg) (*dns.Msg, string) {
	client := &dns.Client{Net: upstreamNetwork, Timeout: s.upstreamTimeout}
	resp, _, err := client.Exchange(query, s.upstream)
	if err != nil {
		fail := new(dns.Msg)
		fail.SetRcode(query, dns.RcodeServerFailure)
		return fail, "servfail"
	}
	return resp, "forwarded"
}

// queryName returns the first question's name, or "?" if query has
// none (defensive only; answer never reaches here without one).
func queryName(query *dns.Msg) string {
	if len(query.Question) == 0 {
		return "?"
	}
	return query.Question[0].Name
}

// readMessage reads a DoT-framed message: a 16-bit big-endian length
// prefix, then exactly that many bytes of DNS wire format. Messages
// over maxMessageSize are rejected. parseErr is set (with readErr nil)
// when the length-prefixed body could not be parsed as a DNS message,
// so the caller can respond FORMERR instead of dropping the connection.
func readMessage(conn net.Conn) (msg *dns.Msg, parseErr, readErr error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 || int(n) > maxMessageSize {
		return nil, nil, fmt.Errorf("message length %d exceeds maximum %d", n, maxMessageSize)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, nil, fmt.Errorf("read message body: %w", err)
	}

	msg = new(dns.Msg)
	if err := msg.Unpack(buf); err != nil {
		return nil, fmt.Errorf("unpack message: %w", err), nil
	}
	return msg, nil, nil
}

func writeMessage(conn net.Conn, msg *dns.Msg) error {
	buf, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("pack message: %w", err)
	}
	if len(buf) > 0xffff {
		return fmt.Errorf("response too large: %d bytes", len(buf))
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(buf)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	return nil
}
