package smtp

import (
	"context"
	"crypto/tls"
	"time"
)

// startTLS performs the STARTTLS handover (spec.md §4.6), grounded on the
// teacher's MSA.handleSTARTTLS (net.Conn → tls.Server(...).Handshake()
// → swap the connection) combined with original_source/src/server.rs's
// `starttls` for the flush → recover-read-buffer → pipelining-check →
// raw-220-write sequence the teacher's own STARTTLS handling skips.
//
// On success it returns the TLS-wrapped Transport for the caller to
// re-enter the session loop on, with the banner suppressed. On failure
// it returns the error that ends the session; in the ErrPipelining case,
// specifically, no reply has been written at all.
func (s *Session) startTLS(ctx context.Context, tlsConfig *tls.Config, timeout time.Duration) (Transport, error) {
	if err := s.codec.Flush(); err != nil {
		return nil, err
	}

	rawTransport, pending := s.codec.Decompose()
	if len(pending) > 0 {
		// A client that sent bytes after STARTTLS before our 220 has
		// violated RFC 3207 §5 and MUST be rejected outright — those
		// bytes could otherwise be replayed as commands across the TLS
		// boundary (response injection).
		return nil, ErrPipelining
	}

	if timeout > 0 {
		_ = rawTransport.SetWriteDeadline(time.Now().Add(timeout))
	}
	greeting := NewReply(220, "starting TLS").Render()
	if _, err := rawTransport.Write([]byte(greeting)); err != nil {
		return nil, &IOError{Err: err}
	}

	// HandshakeContext is itself context-aware; watchCancellation's
	// deadline-forcing on s.transport covers it too since rawTransport is
	// the same underlying connection.
	tlsConn := tls.Server(rawTransport, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, &IOError{Err: err}
	}

	return NewTransport(tlsConn), nil
}
