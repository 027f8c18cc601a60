package smtp

import "time"

// dataSentinel is the three-octet line that terminates a DATA payload.
const dataSentinel = ".\r\n"

// BodyStream is a lazy, forward-only, single-use sequence over the DATA
// payload. Grounded on the teacher's DataReader (wraps
// net/textproto.Reader.DotReader) and mta.go's ioutil.ReadAll(&cmd.R)
// consumption loop, reworked into a pull-based iterator per spec.md
// §4.4/§9: textproto.DotReader doesn't expose whether it was driven to
// completion versus abandoned mid-stream, and the engine needs exactly
// that boolean to distinguish normal termination from handler abort.
type BodyStream struct {
	codec     *Codec
	exhausted bool
	err       error

	// firstRead distinguishes the "DATA initiation" timeout (the wait
	// for the first body line after the 354 reply) from the "DATA
	// block" timeout that bounds every read after it (spec.md §5, RFC
	// 5321 §4.5.3.2). The line carrying the terminating "." is bounded
	// by the block timeout like any other body line: the engine cannot
	// know a line is the terminator before reading it.
	firstRead    bool
	initTimeout  time.Duration
	blockTimeout time.Duration
}

func newBodyStream(codec *Codec, initTimeout, blockTimeout time.Duration) *BodyStream {
	return &BodyStream{codec: codec, firstRead: true, initTimeout: initTimeout, blockTimeout: blockTimeout}
}

// Next returns the next body line (dot-stuffing already reversed, CRLF
// included), or ok=false once the sentinel has been consumed or an error
// occurred. Check Err after a false return to distinguish clean
// termination from a read failure.
func (s *BodyStream) Next() (line string, ok bool) {
	if s.exhausted || s.err != nil {
		return "", false
	}

	timeout := s.blockTimeout
	if s.firstRead {
		timeout = s.initTimeout
		s.firstRead = false
	}
	if timeout > 0 {
		_ = s.codec.SetReadDeadline(time.Now().Add(timeout))
	}

	raw, err := s.codec.ReadLine()
	if err != nil {
		s.err = err
		s.exhausted = true
		return "", false
	}

	if raw == dataSentinel {
		s.exhausted = true
		return "", false
	}

	if len(raw) > 0 && raw[0] == '.' {
		raw = raw[1:]
	}

	return raw, true
}

// Exhausted reports whether the sentinel has been observed (or a read
// error occurred). The engine uses this to tell normal DATA completion
// apart from a handler that returned early without draining the stream.
func (s *BodyStream) Exhausted() bool {
	return s.exhausted
}

// Err returns the read error, if Next stopped because of one rather than
// because the sentinel was seen.
func (s *BodyStream) Err() error {
	return s.err
}

// Drain reads the stream to exhaustion, discarding lines. The engine does
// not call it; a Handler that stops using the body early can call it so
// the stream ends Exhausted and the engine completes the DATA phase with
// the Handler's reply instead of failing with ErrDataAbort.
func (s *BodyStream) Drain() {
	for {
		if _, ok := s.Next(); !ok {
			return
		}
	}
}
