package smtp

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gopistolet/smtpd/log"
)

// State is the session's protocol state, exactly the three values
// spec.md §3 names.
type State int

const (
	StateInitial State = iota
	StateMAIL
	StateRCPT
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateMAIL:
		return "mail"
	case StateRCPT:
		return "rcpt"
	default:
		return "unknown"
	}
}

// Session is the Session State Machine (spec.md §4.5): it reads
// commands, enforces sequencing, dispatches to the Handler, and writes
// replies, over a Transport it owns for its entire lifetime including
// across a STARTTLS handover.
//
// Grounded on the teacher's conn.serve() dispatch loop in smtp/smtp.go
// and the reference engine driver mta.go's Mta.HandleClient (the
// type-switch-over-Cmd shape, the canReceiveMail/canReceiveRcpt/
// canReceiveData precondition checks this implementation's state
// transitions mirror).
type Session struct {
	parser  CommandParser
	handler Handler
	config  Config

	transport Transport
	codec     *Codec

	state                   State
	tlsActive               bool
	consecutiveSyntaxErrors int
}

// NewSession constructs a session over transport. Call Serve to run it.
func NewSession(transport Transport, parser CommandParser, handler Handler, config Config) *Session {
	return &Session{
		transport: transport,
		parser:    parser,
		handler:   handler,
		config:    config.withDefaults(),
	}
}

// Serve drives the session to completion: QUIT, EOF, or a fatal error.
// It returns nil only if the session ended because the client sent
// QUIT.
func (s *Session) Serve(ctx context.Context) error {
	defer func() {
		// The engine owns the transport for the session's entire
		// lifetime, including across a STARTTLS handover (spec.md §5):
		// whichever transport s.transport holds by the time the loop
		// exits — plaintext or TLS-wrapped — is released here.
		_ = s.transport.Close()
	}()
	return s.run(ctx, true)
}

// run executes the command loop over s.transport until QUIT, an error,
// or a STARTTLS handover. A
// successful STARTTLS re-enters run on the upgraded transport with
// banner suppressed, rather than returning to Serve's caller, so the
// whole upgraded conversation is still one logical Serve call.
func (s *Session) run(ctx context.Context, banner bool) error {
	// watchCancellation ties ctx to this transport for as long as this
	// run invocation is on the stack: a parent cancellation forces the
	// transport's deadline to "now", which unblocks whatever blocking
	// Read/Write (command loop, DATA body, or a STARTTLS handshake) is
	// in flight, per spec.md §5's cancellation requirement. A fresh
	// watcher is started per invocation because STARTTLS swaps
	// s.transport for a new one.
	stopWatch := s.watchCancellation(ctx, s.transport)
	defer stopWatch()

	if state, ok := s.transport.TLSConnectionState(); ok {
		s.tlsActive = true
		s.handler.TLSStarted(ctx, state)
	}

	log.WithFields(log.Fields{"tls": s.tlsActive, "banner": banner}).Debug("session connected")

	s.codec = NewCodec(s.transport, s.config.MaxLineLength, s.config.StrictCRLF)
	keywords := s.ehloKeywords()

	if banner {
		if err := s.send(ctx, NewReply(220, s.config.BannerText), s.config.TimeoutBanner); err != nil {
			return err
		}
	}

	for {
		s.setReadDeadline(s.config.TimeoutCommand)
		line, err := s.codec.ReadLine()
		if err != nil {
			return s.translateIOErr(ctx, err)
		}

		cmd, perr := s.parser.Parse(line)
		if perr != nil {
			s.consecutiveSyntaxErrors++
			if err := s.send(ctx, NewReply(500, "Invalid command syntax"), s.config.TimeoutCommand); err != nil {
				return err
			}
			if s.config.ConsecutiveSyntaxErrorMax > 0 &&
				s.consecutiveSyntaxErrors >= s.config.ConsecutiveSyntaxErrorMax {
				return &SyntaxError{Line: line}
			}
			continue
		}
		s.consecutiveSyntaxErrors = 0

		quit, upgraded, err := s.dispatch(ctx, cmd, keywords)
		log.WithFields(log.Fields{"cmd": cmd, "state": s.state}).Debug("command dispatched")
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		if upgraded != nil {
			s.transport = upgraded
			return s.run(ctx, false)
		}
	}
}

// watchCancellation returns a stop func; call it once this run
// invocation no longer needs ctx observed (deferred in run). If ctx can
// never be cancelled (no Done channel), it does nothing.
func (s *Session) watchCancellation(ctx context.Context, transport Transport) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = transport.SetDeadline(time.Now())
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}

// ehloKeywords computes the sorted EHLO keyword set, adding STARTTLS iff
// TLS is not already active (spec.md §4.5, §3 invariants).
func (s *Session) ehloKeywords() []string {
	keywords := make([]string, len(s.config.AdvertiseExtensions))
	copy(keywords, s.config.AdvertiseExtensions)
	if !s.tlsActive {
		keywords = append(keywords, "STARTTLS")
	}
	sort.Strings(keywords)
	return keywords
}

// setReadDeadline arms the codec's read deadline for the next ReadLine.
// A non-positive timeout leaves any existing deadline untouched (the
// engine never clears a deadline it didn't set for a reason).
func (s *Session) setReadDeadline(timeout time.Duration) {
	if timeout > 0 {
		_ = s.codec.SetReadDeadline(time.Now().Add(timeout))
	}
}

// send renders and writes reply under the given per-phase write
// deadline, flushing immediately. spec.md §4.5.2 only mandates a flush
// at TLS transitions and QUIT, but since the engine processes one
// command per ReadLine and a client is free to wait for each reply
// before pipelining the next, buffering writes indefinitely would stall
// any transport without its own flush-on-idle behavior; flushing after
// every reply keeps ordering (replies emitted in triggering-command
// order) trivially true while still permitting a client to pipeline its
// own commands ahead of reading replies.
func (s *Session) send(ctx context.Context, reply *Reply, timeout time.Duration) error {
	if timeout > 0 {
		_ = s.codec.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := s.codec.WriteLine(reply.Render()); err != nil {
		return s.translateIOErr(ctx, err)
	}
	if err := s.codec.Flush(); err != nil {
		return s.translateIOErr(ctx, err)
	}
	return nil
}

// translateIOErr inspects a failed read/write: a non-timeout error is
// returned unchanged. A timeout caused by ctx cancellation (spec.md §5)
// is reported as ctx.Err() so the caller can tell termination apart from
// an expired protocol timeout. Otherwise it is a genuine per-phase
// timeout (RFC 5321 §4.5.3.2): a best-effort 421 is attempted before
// returning ErrTimeout, per spec.md §5's "session ends with an IO error
// after a best-effort 421 service-closing reply."
func (s *Session) translateIOErr(ctx context.Context, err error) error {
	if !isTimeout(err) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	s.sendBestEffort421()
	return ErrTimeout
}

// sendBestEffort421 tries once, with its own short deadline, to notify
// the peer the session is closing on timeout. Failure is ignored: by
// definition the transport is already in trouble, and this call must
// never recurse back through send/translateIOErr.
func (s *Session) sendBestEffort421() {
	_ = s.codec.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.codec.WriteLine(NewReply(421, "timeout, closing connection").Render())
	_ = s.codec.Flush()
}

// dispatch handles one parsed command. It returns quit=true after QUIT,
// or a non-nil upgraded transport after a successful STARTTLS handover.
func (s *Session) dispatch(ctx context.Context, cmd Command, keywords []string) (quit bool, upgraded Transport, err error) {
	switch c := cmd.(type) {

	case CmdHELO:
		s.state = StateInitial
		err = s.send(ctx, NewReply(250, "ok"), s.config.TimeoutCommand)

	case CmdEHLO:
		s.state = StateInitial
		lines := append([]string{"ok"}, keywords...)
		err = s.send(ctx, NewReply(250, strings.Join(lines, "\n")), s.config.TimeoutCommand)

	case CmdRSET:
		s.state = StateInitial
		err = s.send(ctx, NewReply(250, "ok"), s.config.TimeoutCommand)

	case CmdNOOP:
		err = s.send(ctx, NewReply(250, "ok"), s.config.TimeoutCommand)

	case CmdQUIT:
		if err = s.send(ctx, NewReply(250, "bye"), s.config.TimeoutCommand); err == nil {
			quit = true
		}

	case CmdMAIL:
		err = s.doMail(ctx, c)

	case CmdRCPT:
		err = s.doRcpt(ctx, c)

	case CmdDATA:
		err = s.doData(ctx)

	case CmdSTARTTLS:
		if s.tlsActive {
			// Nested STARTTLS: not advertised, so treated like any
			// other unrecognized command (spec.md §4.6).
			err = s.send(ctx, NewReply(502, "command not implemented"), s.config.TimeoutCommand)
			break
		}
		upgraded, err = s.doStartTLS(ctx)

	default:
		err = s.send(ctx, NewReply(502, "command not implemented"), s.config.TimeoutCommand)
	}

	return quit, upgraded, err
}

func (s *Session) doMail(ctx context.Context, cmd CmdMAIL) error {
	if s.state != StateInitial {
		return s.send(ctx, NewReply(503, "bad sequence of commands"), s.config.TimeoutCommand)
	}

	res := s.handler.Mail(ctx, cmd.Path, cmd.Params)
	if res.Ok() {
		s.state = StateMAIL
		return s.send(ctx, defaultReply(res.Reply, 250, "ok"), s.config.TimeoutCommand)
	}
	return s.send(ctx, defaultReply(res.Reply, 550, "mail transaction refused"), s.config.TimeoutCommand)
}

func (s *Session) doRcpt(ctx context.Context, cmd CmdRCPT) error {
	if s.state != StateMAIL && s.state != StateRCPT {
		return s.send(ctx, NewReply(503, "bad sequence of commands"), s.config.TimeoutCommand)
	}

	res := s.handler.Rcpt(ctx, cmd.Path, cmd.Params)
	if res.Ok() {
		s.state = StateRCPT
		return s.send(ctx, defaultReply(res.Reply, 250, "ok"), s.config.TimeoutCommand)
	}
	return s.send(ctx, defaultReply(res.Reply, 550, "recipient not accepted"), s.config.TimeoutCommand)
}

// doData runs the full DATA phase (spec.md §4.5.1): precondition check,
// data_start, streaming the body to the handler, then normal completion,
// abort, or propagated error. The three DATA-specific deadlines of
// spec.md §5 (RFC 5321 §4.5.3.2) are applied at their respective points:
// TimeoutDataInit bounds both the "354" write and the first body-line
// read, TimeoutDataBlock bounds every body-line read after that (via
// BodyStream), and TimeoutDataTerm bounds writing the phase's final
// reply — the server-side counterpart of the client's post-terminator
// wait the RFC names.
func (s *Session) doData(ctx context.Context) error {
	switch s.state {
	case StateInitial:
		return s.send(ctx, NewReply(503, "mail transaction not started"), s.config.TimeoutCommand)
	case StateMAIL:
		return s.send(ctx, NewReply(503, "must have at least one valid recipient"), s.config.TimeoutCommand)
	}

	res := s.handler.DataStart(ctx)
	if !res.Ok() {
		return s.send(ctx, defaultReply(res.Reply, 550, "data not accepted"), s.config.TimeoutCommand)
	}
	if err := s.send(ctx, defaultReply(res.Reply, 354, "send data"), s.config.TimeoutDataInit); err != nil {
		return err
	}

	stream := newBodyStream(s.codec, s.config.TimeoutDataInit, s.config.TimeoutDataBlock)
	final := s.handler.Data(ctx, stream)

	if stream.Err() != nil {
		return s.translateIOErr(ctx, stream.Err())
	}

	if !stream.Exhausted() {
		// The handler returned before observing the sentinel: the
		// transport is no longer synchronized with the protocol, so the
		// session must end even though we still owe it a reply.
		_ = s.send(ctx, defaultReply(final, 550, "data abort"), s.config.TimeoutDataTerm)
		return ErrDataAbort
	}

	s.state = StateInitial
	return s.send(ctx, defaultReply(final, 250, "body ok"), s.config.TimeoutDataTerm)
}

func (s *Session) doStartTLS(ctx context.Context) (Transport, error) {
	tlsConfig := s.handler.TLSRequest(ctx)
	if tlsConfig == nil {
		return nil, s.send(ctx, NewReply(502, "command not implemented"), s.config.TimeoutCommand)
	}

	transport, err := s.startTLS(ctx, tlsConfig, s.config.TimeoutCommand)
	if err != nil {
		return nil, s.translateIOErr(ctx, err)
	}
	return transport, nil
}

func defaultReply(override *Reply, code int, message string) *Reply {
	if override != nil {
		return override
	}
	return NewReply(code, message)
}
