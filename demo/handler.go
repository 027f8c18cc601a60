// Package demo is a reference policy Handler: reject mail that fails an
// SPF check, accept RCPT only for known mailboxes, and deliver accepted
// messages into a Maildir. It exists to give the engine in package smtp
// a runnable collaborator; a real deployment is expected to supply its
// own Handler.
package demo

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/gopistolet/gospf"
	maildir "github.com/sloonz/go-maildir"

	"github.com/gopistolet/smtpd/log"
	"github.com/gopistolet/smtpd/smtp"
)

// Mailboxes is the set of local recipients this handler will accept
// RCPT TO for. Grounded on the teacher's UserDB.UserExists/Get, with the
// semantics repurposed from "can this user authenticate" to "does this
// recipient mailbox exist" — a delivery-policy question, not AUTH.
type Mailboxes struct {
	mu   sync.RWMutex
	byTo map[string]bool
}

// NewMailboxes builds a Mailboxes set from a list of local-part@domain
// addresses, matched case-insensitively as RFC 5321 requires for the
// domain part (the local part is matched verbatim).
func NewMailboxes(addrs ...string) *Mailboxes {
	m := &Mailboxes{byTo: make(map[string]bool, len(addrs))}
	for _, a := range addrs {
		m.byTo[normalizeAddr(a)] = true
	}
	return m
}

func normalizeAddr(a string) string {
	at := strings.LastIndex(a, "@")
	if at < 0 {
		return a
	}
	return a[:at] + "@" + strings.ToLower(a[at+1:])
}

// Exists reports whether mbox is one of the accepted local recipients.
func (m *Mailboxes) Exists(mbox smtp.Mailbox) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byTo[normalizeAddr(mbox.Local+"@"+mbox.Domain.Domain)]
}

// MaxBodyBytes bounds how much of a DATA body this handler will accept
// before rejecting the transaction. Grounded on original_source's
// DummyHandler.data, which rejects bodies over a fixed size with a 521
// reply; generalized into a configurable field instead of a constant.
const defaultMaxBodyBytes = 10 * 1024 * 1024

// Handler is the demo policy implementation of smtp.Handler.
type Handler struct {
	Remote        net.Addr
	TLSConfig     *tls.Config // nil: STARTTLS is not offered to this peer
	Mailboxes     *Mailboxes
	Maildir       maildir.Dir
	MaxBodyBytes  int64
	spfLookupHost func(ip net.IP, domain, sender string) (gospf.Result, error)

	from  smtp.ReversePath
	rcpts []smtp.ForwardPath
}

// New constructs a Handler bound to a single connection's remote
// address, the accepted local mailboxes, and the Maildir root to
// deliver into.
func New(remote net.Addr, tlsConfig *tls.Config, mailboxes *Mailboxes, dir maildir.Dir) *Handler {
	return &Handler{
		Remote:        remote,
		TLSConfig:     tlsConfig,
		Mailboxes:     mailboxes,
		Maildir:       dir,
		MaxBodyBytes:  defaultMaxBodyBytes,
		spfLookupHost: gospf.CheckHost,
	}
}

// TLSRequest offers the configured TLS certificate for STARTTLS, or
// declines the upgrade entirely if none was configured.
func (h *Handler) TLSRequest(context.Context) *tls.Config {
	return h.TLSConfig
}

// TLSStarted records the negotiated TLS parameters for this session.
func (h *Handler) TLSStarted(_ context.Context, state tls.ConnectionState) {
	log.WithFields(log.Fields{
		"remote":  h.Remote,
		"version": state.Version,
		"cipher":  state.CipherSuite,
	}).Info("demo: TLS negotiated")
}

// Mail runs an SPF check against the envelope sender's domain and the
// connecting peer's IP, rejecting on a hard SPF fail. A null reverse-path
// (the bounce-message case) is always accepted: there is no sender
// domain to check.
func (h *Handler) Mail(_ context.Context, path smtp.ReversePath, params []smtp.Param) smtp.HandlerResult {
	h.from = path

	if path.Null || path.Mailbox.Domain.Domain == "" {
		return smtp.Accept(nil)
	}

	ip, ok := hostIP(h.Remote)
	if !ok {
		return smtp.Accept(nil)
	}

	sender := path.Mailbox.Local + "@" + path.Mailbox.Domain.Domain
	result, err := h.spfLookupHost(ip, path.Mailbox.Domain.Domain, sender)
	if err != nil {
		log.WithFields(log.Fields{"remote": h.Remote, "sender": sender}).Warnf("demo: SPF lookup failed: %v", err)
		return smtp.Accept(nil)
	}

	if result == gospf.Fail {
		return smtp.Reject(smtp.NewEnhancedReply(550, smtp.EnhancedStatus{Class: 5, Subject: 7, Detail: 1},
			"sender policy framework check failed"), nil)
	}

	return smtp.Accept(nil)
}

// Rcpt accepts only recipients present in the configured Mailboxes set.
func (h *Handler) Rcpt(_ context.Context, path smtp.ForwardPath, _ []smtp.Param) smtp.HandlerResult {
	if path.Kind == smtp.ForwardPathPostmaster {
		h.rcpts = append(h.rcpts, path)
		return smtp.Accept(nil)
	}

	if !h.Mailboxes.Exists(path.Mailbox) {
		return smtp.Reject(smtp.NewReply(550, "no such mailbox"), nil)
	}

	h.rcpts = append(h.rcpts, path)
	return smtp.Accept(nil)
}

// DataStart has nothing to veto in this handler; it always proceeds.
func (h *Handler) DataStart(context.Context) smtp.HandlerResult {
	return smtp.Accept(nil)
}

// Data streams the body into a fresh Maildir message. If the body exceeds
// MaxBodyBytes it drops the delivery, drains the rest of the stream and
// replies 552, so the session continues.
func (h *Handler) Data(ctx context.Context, stream *smtp.BodyStream) *smtp.Reply {
	delivery, err := h.Maildir.Create(nil)
	if err != nil {
		log.Errorf("demo: could not open maildir delivery: %v", err)
		return smtp.NewReply(451, "could not open mail store")
	}

	var written int64
	for {
		line, ok := stream.Next()
		if !ok {
			break
		}
		written += int64(len(line))
		if written > h.MaxBodyBytes {
			_ = delivery.Close()
			stream.Drain()
			return smtp.NewReply(552, "message exceeds maximum allowed size")
		}
		if _, err := delivery.Write([]byte(line)); err != nil {
			_ = delivery.Close()
			return smtp.NewReply(451, "error writing message")
		}
	}

	if err := stream.Err(); err != nil {
		_ = delivery.Close()
		log.WithFields(log.Fields{"remote": h.Remote}).Warnf("demo: DATA aborted: %v", err)
		return smtp.NewReply(451, "message transfer aborted")
	}

	if err := delivery.Close(); err != nil {
		log.Errorf("demo: could not finalize maildir delivery: %v", err)
		return smtp.NewReply(451, "could not store message")
	}

	log.WithFields(log.Fields{
		"remote": h.Remote,
		"from":   addrString(h.from),
		"rcpts":  len(h.rcpts),
		"bytes":  written,
	}).Info("demo: message delivered")

	return smtp.NewReply(250, fmt.Sprintf("message accepted for %d recipient(s)", len(h.rcpts)))
}

func addrString(path smtp.ReversePath) string {
	if path.Null {
		return "<>"
	}
	return path.Mailbox.Local + "@" + path.Mailbox.Domain.Domain
}

func hostIP(addr net.Addr) (net.IP, bool) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, false
	}
	return tcpAddr.IP, true
}
