package smtp

import (
	"bufio"
	"io"
	"time"
)

// DefaultMaxLineLength is RFC 5321 §4.5.3.1.6: 998 octets of content plus
// the CRLF terminator.
const DefaultMaxLineLength = 1000

// Codec frames a byte stream into CRLF-terminated lines, each delivered
// including its terminator, and sinks pre-formatted reply bytes back
// through to the transport unchanged. It is symmetric: reads go through
// ReadLine, writes go through WriteLine/Flush.
//
// Grounded on the teacher's UntillReader/ReadUntill (max-length reads with
// resynchronization) in smtp/protocol.go.
type Codec struct {
	transport Transport
	r         *bufio.Reader
	w         *bufio.Writer

	maxLine int
	strict  bool

	// discarding is set by resync: the rest of the offending line, up to
	// and including the next LF, is skipped at the start of the next
	// ReadLine.
	discarding bool
}

// NewCodec wraps transport with line framing. maxLine <= 0 selects
// DefaultMaxLineLength.
func NewCodec(transport Transport, maxLine int, strict bool) *Codec {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Codec{
		transport: transport,
		r:         bufio.NewReader(transport),
		w:         bufio.NewWriter(transport),
		maxLine:   maxLine,
		strict:    strict,
	}
}

// ReadLine returns the next CRLF-terminated line, CRLF included.
//
// A FramingError is returned as soon as it is detected; the rest of the
// offending line is discarded at the start of the next ReadLine, so the
// caller may continue reading and gets the line after it. On EOF with no
// bytes read yet, ErrEOF is returned — a clean close between commands.
// Any other failure is wrapped as *IOError and is fatal.
func (c *Codec) ReadLine() (string, error) {
	for c.discarding {
		b, err := c.r.ReadByte()
		if err != nil || b == '\n' {
			c.discarding = false
		}
	}

	var buf []byte
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if len(buf) == 0 {
					return "", ErrEOF
				}
				return "", &IOError{Err: io.ErrUnexpectedEOF}
			}
			return "", &IOError{Err: err}
		}

		switch b {
		case '\r':
			next, peekErr := c.r.Peek(1)
			if peekErr == nil && len(next) == 1 && next[0] == '\n' {
				_, _ = c.r.ReadByte() // consume the \n
				buf = append(buf, '\r', '\n')
				return c.finish(buf)
			}
			if c.strict {
				return "", c.resync(buf, ErrBareCR)
			}
			buf = append(buf, b)
			if len(buf) > c.maxLine {
				return "", c.resync(buf, ErrLineTooLong)
			}
		case '\n':
			if c.strict {
				return "", &FramingError{Line: string(buf), Err: ErrBareLF}
			}
			buf = append(buf, b)
			return c.finish(buf)
		default:
			buf = append(buf, b)
			if len(buf) > c.maxLine {
				return "", c.resync(buf, ErrLineTooLong)
			}
		}
	}
}

func (c *Codec) finish(buf []byte) (string, error) {
	if len(buf) > c.maxLine {
		// The terminator is already consumed: nothing left to discard.
		return "", &FramingError{Line: string(buf), Err: ErrLineTooLong}
	}
	return string(buf), nil
}

// resync marks the rest of the current line, up to and including the next
// LF, to be discarded by the next ReadLine so the stream realigns on a
// line boundary, then returns a FramingError describing buf (the offending
// prefix) and cause. It does not read, so the error is reported without
// waiting for a terminator that may never arrive.
func (c *Codec) resync(buf []byte, cause error) error {
	c.discarding = true
	return &FramingError{Line: string(buf), Err: cause}
}

// WriteLine writes a pre-formatted reply (already CRLF-terminated) to the
// buffered output. It is not sent to the peer until Flush is called.
func (c *Codec) WriteLine(line string) error {
	_, err := c.w.WriteString(line)
	if err != nil {
		return &IOError{Err: err}
	}
	return nil
}

// Flush pushes buffered writes to the transport and flushes the
// transport itself (§4.5.2: output is flushed at every TLS transition
// and at QUIT).
func (c *Codec) Flush() error {
	if err := c.w.Flush(); err != nil {
		return &IOError{Err: err}
	}
	if err := c.transport.Flush(); err != nil {
		return &IOError{Err: err}
	}
	return nil
}

// SetReadDeadline arms the underlying transport's read deadline ahead of
// the next ReadLine, implementing one of the per-phase timeouts of
// spec.md §5 (RFC 5321 §4.5.3.2). A zero t clears any deadline.
func (c *Codec) SetReadDeadline(t time.Time) error {
	return c.transport.SetReadDeadline(t)
}

// SetWriteDeadline arms the underlying transport's write deadline ahead
// of the next WriteLine/Flush.
func (c *Codec) SetWriteDeadline(t time.Time) error {
	return c.transport.SetWriteDeadline(t)
}

// Decompose recovers the underlying transport and any bytes already read
// from the peer but not yet consumed by ReadLine (buffered ahead of a
// line boundary). The codec must not be used after calling Decompose —
// per spec.md §9, a codec that discards its read buffer on teardown
// cannot implement RFC 3207 correctly, since those buffered bytes are
// exactly what the STARTTLS pipelining check inspects.
func (c *Codec) Decompose() (transport Transport, pending []byte) {
	n := c.r.Buffered()
	pending, _ = c.r.Peek(n)
	buf := make([]byte, len(pending))
	copy(buf, pending)
	return c.transport, buf
}
