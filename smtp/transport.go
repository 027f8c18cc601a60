package smtp

import (
	"crypto/tls"
	"net"
)

// Transport is the bidirectional byte stream the engine is driven over.
// It is net.Conn plus Flush (most transports, e.g. raw TCP, flush
// trivially) and a capability to report whether TLS is already active —
// the shape spec.md §6 calls for ("read, write, flush... an optional
// capability reports whether a TLS session is active"). Requiring
// net.Conn (rather than a bare io.Reader/io.Writer) is what lets the TLS
// Upgrade Procedure hand the transport straight to crypto/tls.Server,
// which the core treats as an external collaborator (spec.md §1).
type Transport interface {
	net.Conn
	Flush() error
	TLSConnectionState() (tls.ConnectionState, bool)
}

// plainTransport adapts a net.Conn with a no-op Flush and
// reflection-free TLS-state detection (true only for *tls.Conn, via its
// ConnectionState method).
type plainTransport struct {
	net.Conn
}

func (p *plainTransport) Flush() error { return nil }

func (p *plainTransport) TLSConnectionState() (tls.ConnectionState, bool) {
	if t, ok := p.Conn.(interface {
		ConnectionState() tls.ConnectionState
	}); ok {
		return t.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// NewTransport adapts a net.Conn (typically from a TCP listener, or a
// *tls.Conn for an implicit-TLS listener) into a Transport.
func NewTransport(conn net.Conn) Transport {
	return &plainTransport{Conn: conn}
}
