package proxy

import (
	"io"
	"net"
	"sync"

	"github.com/cuemby/ztgateway/pkg/metrics"
)

// halfCloser is implemented by net.TCPConn and tls.Conn: a connection
// whose write side can be closed independently of its read side.
type halfCloser interface {
	CloseWrite() error
}

// tunnel replays the initial peeked buffer to backend, then runs two
// concurrent copy loops until both directions have closed. Both
// sockets are released on every exit path, regardless of which side
// errors first.
func tunnel(client, backend net.Conn, peeked []byte) error {
	if len(peeked) > 0 {
		if _, err := backend.Write(peeked); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	var firstErr error
	var once sync.Once
	recordErr := func(err error) {
		if err != nil {
			once.Do(func() { firstErr = err })
		}
	}

	go func() {
		defer wg.Done()
		n, err := io.Copy(backend, client)
		metrics.TunnelBytesTransferred.WithLabelValues("client_to_backend").Add(float64(n))
		recordErr(err)
		halfClose(backend)
	}()

	go func() {
		defer wg.Done()
		n, err := io.Copy(client, backend)
		metrics.TunnelBytesTransferred.WithLabelValues("backend_to_client").Add(float64(n))
		recordErr(err)
		halfClose(client)
	}()

	wg.Wait()
	client.Close()
	backend.Close()
	return firstErr
}

// halfClose closes the write side of conn so the peer observes EOF,
// while the read side keeps draining until its own direction closes.
func halfClose(conn net.Conn) {
	if hc, ok := conn.(halfCloser); ok {
		_ = hc.CloseWrite()
		return
	}
	_ = conn.Close()
}
