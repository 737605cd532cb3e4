package proxy

import (
	"net"
	"testing"
)

func TestHostHeaderFrom(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nHost: db.internal.corp\r\nAccept: */*\r\n\r\n")
	if got := hostHeaderFrom(req); got != "db.internal.corp" {
		t.Errorf("hostHeaderFrom = %q, want db.internal.corp", got)
	}
}

func TestHostHeaderFromCaseInsensitive(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nHOST: api.example.com\r\n\r\n")
	if got := hostHeaderFrom(req); got != "api.example.com" {
		t.Errorf("hostHeaderFrom = %q, want api.example.com", got)
	}
}

func TestLiteralZoneFrom(t *testing.T) {
	buf := []byte("user=admin database=db.internal.corp application_name=client")
	zones := []string{"internal.corp", "db.internal.corp"}
	if got := literalZoneFrom(buf, zones); got != "db.internal.corp" {
		t.Errorf("literalZoneFrom = %q, want db.internal.corp", got)
	}
}

func TestLiteralZoneFromRejectsPartialLabel(t *testing.T) {
	buf := []byte("connecting to corporate.example.com now")
	zones := []string{"corp"}
	if got := literalZoneFrom(buf, zones); got != "" {
		t.Errorf("literalZoneFrom should not match \"corp\" inside \"corporate\", got %q", got)
	}
}

// clientHelloBody builds a minimal ClientHello body (everything after
// the 4-byte handshake header): version+random, empty session ID, one
// cipher suite, one compression method, and — when sni is non-empty —
// a server_name extension carrying it.
func clientHelloBody(sni string) []byte {
	body := make([]byte, 34) // version(2) + random(32), zeroed
	body = append(body, 0x00)                   // session id, empty
	body = append(body, 0x00, 0x02, 0x00, 0x2f) // cipher suites: one suite
	body = append(body, 0x01, 0x00)             // compression methods: one method

	var extensions []byte
	if sni != "" {
		host := []byte(sni)
		entry := append([]byte{0x00}, byte(len(host)>>8), byte(len(host)))
		entry = append(entry, host...)
		list := append([]byte{byte(len(entry) >> 8), byte(len(entry))}, entry...)
		ext := append([]byte{0x00, 0x00}, byte(len(list)>>8), byte(len(list)))
		ext = append(ext, list...)
		extensions = append(extensions, ext...)
	}

	body = append(body, byte(len(extensions)>>8), byte(len(extensions)))
	body = append(body, extensions...)
	return body
}

// clientHelloRecord wraps body in a ClientHello handshake message (type
// byte overridable via handshakeType) inside a single TLS record (type
// byte overridable via recordType).
func clientHelloRecord(recordType, handshakeType byte, body []byte) []byte {
	hs := append([]byte{handshakeType}, byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	hs = append(hs, body...)

	rec := append([]byte{recordType, 0x03, 0x03}, byte(len(hs)>>8), byte(len(hs)))
	rec = append(rec, hs...)
	return rec
}

func TestSniFromValidSNI(t *testing.T) {
	buf := clientHelloRecord(0x16, 0x01, clientHelloBody("db.internal.corp"))
	if got := sniFrom(buf); got != "db.internal.corp" {
		t.Errorf("sniFrom = %q, want db.internal.corp", got)
	}
}

func TestSniFromNoSNIExtension(t *testing.T) {
	buf := clientHelloRecord(0x16, 0x01, clientHelloBody(""))
	if got := sniFrom(buf); got != "" {
		t.Errorf("sniFrom = %q, want empty when no SNI extension present", got)
	}
}

func TestSniFromWrongRecordType(t *testing.T) {
	buf := clientHelloRecord(0x17, 0x01, clientHelloBody("db.internal.corp")) // application_data
	if got := sniFrom(buf); got != "" {
		t.Errorf("sniFrom = %q, want empty for non-handshake record", got)
	}
}

func TestSniFromNotClientHello(t *testing.T) {
	buf := clientHelloRecord(0x16, 0x02, clientHelloBody("db.internal.corp")) // ServerHello
	if got := sniFrom(buf); got != "" {
		t.Errorf("sniFrom = %q, want empty for non-ClientHello handshake message", got)
	}
}

func TestSniFromTooShortBuffer(t *testing.T) {
	for _, buf := range [][]byte{nil, {0x16}, {0x16, 0x03, 0x03, 0x00}} {
		if got := sniFrom(buf); got != "" {
			t.Errorf("sniFrom(%x) = %q, want empty for too-short buffer", buf, got)
		}
	}
}

func TestSniFromTruncatedRecord(t *testing.T) {
	full := clientHelloRecord(0x16, 0x01, clientHelloBody("db.internal.corp"))
	truncated := full[:len(full)-10]
	if got := sniFrom(truncated); got != "" {
		t.Errorf("sniFrom = %q, want empty for truncated record", got)
	}
}

func TestSniFromRecordLengthOverflow(t *testing.T) {
	buf := clientHelloRecord(0x16, 0x01, clientHelloBody("db.internal.corp"))
	// Claim a record body far larger than what actually follows.
	buf[3] = 0xff
	buf[4] = 0xff
	if got := sniFrom(buf); got != "" {
		t.Errorf("sniFrom = %q, want empty when record length overflows buffer", got)
	}
}

func TestSniFromExtensionLengthOverflow(t *testing.T) {
	buf := clientHelloRecord(0x16, 0x01, clientHelloBody("db.internal.corp"))
	// The 2-byte extensions-total-length field sits right after
	// version+random(34)+session id(1 byte, empty)+cipher suites(2-byte
	// length + 2 bytes of data)+compression methods(1-byte length + 1
	// byte of data) within the handshake body, which starts 9 bytes into
	// the record (5-byte record header + 4-byte handshake header).
	extTotalLenOffset := 5 + 4 + 34 + 1 + 4 + 2
	buf[extTotalLenOffset] = 0xff
	buf[extTotalLenOffset+1] = 0xff
	if got := sniFrom(buf); got != "" {
		t.Errorf("sniFrom = %q, want empty when extensions-total-length overflows buffer", got)
	}
}

func TestSniFromExtensionEntryLengthOverflow(t *testing.T) {
	buf := clientHelloRecord(0x16, 0x01, clientHelloBody("db.internal.corp"))
	// The server_name extension's own length field (2 bytes, right
	// after the 2-byte extension type) is the last 2 bytes before the
	// server-name-list payload; the extensions block starts right after
	// the 2-byte extensions-total-length field computed above.
	extOffset := 5 + 4 + 34 + 1 + 4 + 2 + 2
	buf[extOffset+2] = 0xff
	buf[extOffset+3] = 0xff
	if got := sniFrom(buf); got != "" {
		t.Errorf("sniFrom = %q, want empty when extension body length overflows buffer", got)
	}
}

func TestSniffHostnameReturnsErrNoHostname(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("\x01\x02\x03\x04 no recognizable hostname here"))
	}()

	_, peeked, err := sniffHostname(server, nil)
	if err != ErrNoHostname {
		t.Errorf("expected ErrNoHostname, got %v", err)
	}
	if len(peeked) == 0 {
		t.Error("peeked buffer should still be returned for potential logging")
	}
}

