package smtp

import (
	"context"
	"crypto/tls"
)

// HandlerResult is the accept/reject shape every policy callback returns:
// Ok carries an optional reply overriding the engine's default accept
// reply; Err carries an optional reply overriding the default reject
// reply. Grounded on original_source/src/server.rs's
// `HandlerResult = Result<Option<Reply>, Option<Reply>>` (see
// SPEC_FULL.md "Supplemented features"), expressed in Go as a
// (*Reply, error) pair: a nil error means accept, any non-nil error
// means reject, and in both cases a nil *Reply means "use the engine's
// default".
type HandlerResult struct {
	Reply *Reply
	Err   error
}

// Accept builds an accepting HandlerResult, optionally overriding the
// default reply.
func Accept(reply *Reply) HandlerResult {
	return HandlerResult{Reply: reply}
}

// Reject builds a rejecting HandlerResult, optionally overriding the
// default reply. err is surfaced only for the caller's own bookkeeping —
// the engine never inspects it beyond nil-ness.
func Reject(reply *Reply, err error) HandlerResult {
	if err == nil {
		err = errRejected
	}
	return HandlerResult{Reply: reply, Err: err}
}

var errRejected = &rejectedError{}

type rejectedError struct{}

func (*rejectedError) Error() string { return "smtp: rejected by handler" }

// Ok reports whether this result accepts.
func (r HandlerResult) Ok() bool { return r.Err == nil }

// Handler is the policy capability the Session State Machine calls out
// to (spec.md §4.7). The engine holds no transaction state of its own;
// everything a Handler accumulates (sender, recipients, body) is the
// Handler's responsibility to reset at the boundaries it chooses.
//
// Every operation may block (or, via ctx, be cancelled); cancellation
// leaves the session unsafe to resume and the engine treats it as
// termination, per spec.md §5.
type Handler interface {
	// TLSRequest is called on STARTTLS to ask whether TLS is offered at
	// all and, if so, with what configuration. A nil return refuses
	// (502 command not implemented).
	TLSRequest(ctx context.Context) *tls.Config

	// TLSStarted notifies the handler that TLS is now (or was already,
	// on entry) active, so it can record/log the negotiated parameters.
	TLSStarted(ctx context.Context, state tls.ConnectionState)

	// Mail is called on a syntactically valid MAIL command. Accepting
	// advances the session state to MAIL.
	Mail(ctx context.Context, path ReversePath, params []Param) HandlerResult

	// Rcpt is called on a syntactically valid RCPT command. Accepting
	// advances the session state to RCPT.
	Rcpt(ctx context.Context, path ForwardPath, params []Param) HandlerResult

	// DataStart is called on a DATA command once preconditions (a MAIL
	// and at least one RCPT) hold, before the body is read.
	DataStart(ctx context.Context) HandlerResult

	// Data is called once DataStart accepted; it must consume stream
	// (via Next) until Exhausted or choose to stop early, returning an
	// optional final reply. Stopping before Exhausted triggers
	// ErrDataAbort in the engine.
	Data(ctx context.Context, stream *BodyStream) *Reply
}
