package proxy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

// peekSize is the maximum number of bytes read from the client before
// the proxy must have discovered a destination hostname.
const peekSize = 8 * 1024

// peekDeadline bounds the hostname-discovery read.
const peekDeadline = 5 * time.Second

// ErrNoHostname is returned when none of the three sniffing heuristics
// found a destination hostname within the peeked buffer.
var ErrNoHostname = fmt.Errorf("no destination hostname found in initial bytes")

// sniffHostname peeks up to peekSize bytes from conn without
// discarding them (the caller must still forward every peeked byte to
// the backend) and tries, in order: an HTTP Host header, a TLS
// ClientHello SNI, and a literal match of any known zone name.
func sniffHostname(conn net.Conn, knownZones []string) (hostname string, peeked []byte, err error) {
	if err := conn.SetReadDeadline(time.Now().Add(peekDeadline)); err != nil {
		return "", nil, fmt.Errorf("set read deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	reader := bufio.NewReaderSize(conn, peekSize)
	buf, _ := reader.Peek(peekSize)
	// Peek waits until peekSize bytes have arrived or the read fails
	// (peekDeadline passes or the client closes), then returns whatever
	// is buffered; a short buffer is still searched as-is.
	if len(buf) == 0 {
		return "", nil, fmt.Errorf("no bytes received from client")
	}
	peeked = append([]byte(nil), buf...)

	if host := hostHeaderFrom(peeked); host != "" {
		return host, peeked, nil
	}
	if host := sniFrom(peeked); host != "" {
		return host, peeked, nil
	}
	if host := literalZoneFrom(peeked, knownZones); host != "" {
		return host, peeked, nil
	}
	return "", peeked, ErrNoHostname
}

// hostHeaderFrom finds a case-insensitive "Host:" header line anywhere
// in buf and returns its trimmed value.
func hostHeaderFrom(buf []byte) string {
	lower := bytes.ToLower(buf)
	idx := bytes.Index(lower, []byte("host:"))
	if idx == -1 {
		return ""
	}
	rest := buf[idx+len("host:"):]
	end := bytes.IndexAny(rest, "\r\n")
	if end == -1 {
		end = len(rest)
	}
	return strings.TrimSpace(string(rest[:end]))
}

// sniFrom parses a TLS record containing a ClientHello and extracts
// the server_name extension, without terminating the TLS connection.
func sniFrom(buf []byte) string {
	const (
		recordTypeHandshake = 0x16
		handshakeClientHello = 0x01
		extServerName        = 0x0000
	)

	if len(buf) < 5 || buf[0] != recordTypeHandshake {
		return ""
	}
	recordLen := int(binary.BigEndian.Uint16(buf[3:5]))
	if recordLen <= 0 || 5+recordLen > len(buf) {
		return ""
	}
	hs := buf[5 : 5+recordLen]

	if len(hs) < 4 || hs[0] != handshakeClientHello {
		return ""
	}
	hsLen := int(hs[1])<<16 | int(hs[2])<<8 | int(hs[3])
	if 4+hsLen > len(hs) {
		return ""
	}
	body := hs[4 : 4+hsLen]

	// version(2) + random(32)
	pos := 34
	if pos > len(body) {
		return ""
	}
	pos, ok := skipLenPrefixed(body, pos, 1) // session id
	if !ok {
		return ""
	}
	pos, ok = skipLenPrefixed(body, pos, 2) // cipher suites
	if !ok {
		return ""
	}
	pos, ok = skipLenPrefixed(body, pos, 1) // compression methods
	if !ok {
		return ""
	}
	if pos+2 > len(body) {
		return ""
	}
	extTotalLen := int(binary.BigEndian.Uint16(body[pos : pos+2]))
	pos += 2
	if pos+extTotalLen > len(body) {
		return ""
	}
	extensions := body[pos : pos+extTotalLen]

	for len(extensions) >= 4 {
		extType := binary.BigEndian.Uint16(extensions[0:2])
		extLen := int(binary.BigEndian.Uint16(extensions[2:4]))
		if 4+extLen > len(extensions) {
			return ""
		}
		extBody := extensions[4 : 4+extLen]
		if extType == extServerName {
			return parseServerNameExtension(extBody)
		}
		extensions = extensions[4+extLen:]
	}
	return ""
}

func parseServerNameExtension(body []byte) string {
	if len(body) < 2 {
		return ""
	}
	listLen := int(binary.BigEndian.Uint16(body[0:2]))
	if 2+listLen > len(body) {
		return ""
	}
	entries := body[2 : 2+listLen]
	for len(entries) >= 3 {
		nameType := entries[0]
		nameLen := int(binary.BigEndian.Uint16(entries[1:3]))
		if 3+nameLen > len(entries) {
			return ""
		}
		if nameType == 0 { // host_name
			return string(entries[3 : 3+nameLen])
		}
		entries = entries[3+nameLen:]
	}
	return ""
}

// skipLenPrefixed advances pos past a field with a lenBytes-byte
// big-endian length prefix followed by that many bytes of data.
func skipLenPrefixed(buf []byte, pos, lenBytes int) (int, bool) {
	if pos+lenBytes > len(buf) {
		return 0, false
	}
	var n int
	switch lenBytes {
	case 1:
		n = int(buf[pos])
	case 2:
		n = int(binary.BigEndian.Uint16(buf[pos : pos+2]))
	default:
		return 0, false
	}
	pos += lenBytes
	if pos+n > len(buf) {
		return 0, false
	}
	return pos + n, true
}

// literalZoneFrom looks for any known zone name as a whole-label,
// case-insensitive substring of buf's printable prefix: a best-effort
// hook for protocols whose initial bytes happen to include the target
// host (e.g. as a connection parameter). When several zones match, the
// longest one wins.
func literalZoneFrom(buf []byte, knownZones []string) string {
	printable := printablePrefix(buf)
	lower := strings.ToLower(printable)
	best := ""
	for _, zone := range knownZones {
		if zone == "" || len(zone) <= len(best) {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(zone)); idx != -1 {
			if wholeLabel(lower, idx, len(zone)) {
				best = zone
			}
		}
	}
	return best
}

func printablePrefix(buf []byte) string {
	for i, b := range buf {
		if b < 0x20 && b != '\t' {
			return string(buf[:i])
		}
	}
	return string(buf)
}

func wholeLabel(s string, idx, n int) bool {
	if idx > 0 {
		c := s[idx-1]
		if isLabelByte(c) {
			return false
		}
	}
	end := idx + n
	if end < len(s) {
		c := s[end]
		if isLabelByte(c) {
			return false
		}
	}
	return true
}

func isLabelByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-'
}
