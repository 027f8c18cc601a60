package smtp

import "time"

// Config holds the engine's per-session options (spec.md §6: "External
// Interfaces — Configuration options"). There is no persisted/global
// state; every session is constructed with its own Config.
type Config struct {
	// MaxLineLength bounds a single framed line, CRLF included.
	// Default DefaultMaxLineLength (1000).
	MaxLineLength int

	// BannerText is the greeting after "220 " on session entry.
	BannerText string

	// StrictCRLF rejects bare CR/LF as a framing error instead of
	// accepting them leniently. Default false.
	StrictCRLF bool

	// AdvertiseExtensions is the base EHLO keyword set, not counting
	// STARTTLS (added/removed automatically based on TLS state). Nil
	// selects DefaultExtensions.
	AdvertiseExtensions []string

	// ConsecutiveSyntaxErrorMax disconnects a session after this many
	// consecutive unrecognized/malformed lines. 0 disables the limit.
	ConsecutiveSyntaxErrorMax int

	// Per-phase timeouts, per RFC 5321 §4.5.3.2. Zero selects the RFC
	// default for that phase.
	TimeoutBanner       time.Duration
	TimeoutCommand      time.Duration
	TimeoutDataInit     time.Duration
	TimeoutDataBlock    time.Duration
	TimeoutDataTerm     time.Duration
}

// DefaultExtensions is the sorted union of the always-on ESMTP
// extensions the engine advertises (spec.md §4.5): PIPELINING (RFC
// 2920), ENHANCEDSTATUSCODES (RFC 2034), SMTPUTF8 (RFC 6531). CHUNKING
// (RFC 3030) is deliberately absent per the Open Questions decision in
// SPEC_FULL.md: CmdBDAT is parsed but never advertised or dispatched, so
// a client can only reach it by ignoring the EHLO response.
var DefaultExtensions = []string{
	"ENHANCEDSTATUSCODES",
	"PIPELINING",
	"SMTPUTF8",
}

const (
	defaultTimeoutBanner    = 5 * time.Minute
	defaultTimeoutCommand   = 5 * time.Minute
	defaultTimeoutDataInit  = 2 * time.Minute
	defaultTimeoutDataBlock = 3 * time.Minute
	defaultTimeoutDataTerm  = 10 * time.Minute
)

// withDefaults returns a copy of c with zero-valued fields filled in.
func (c Config) withDefaults() Config {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.BannerText == "" {
		c.BannerText = "localhost ESMTP"
	}
	if c.AdvertiseExtensions == nil {
		c.AdvertiseExtensions = DefaultExtensions
	}
	if c.TimeoutBanner == 0 {
		c.TimeoutBanner = defaultTimeoutBanner
	}
	if c.TimeoutCommand == 0 {
		c.TimeoutCommand = defaultTimeoutCommand
	}
	if c.TimeoutDataInit == 0 {
		c.TimeoutDataInit = defaultTimeoutDataInit
	}
	if c.TimeoutDataBlock == 0 {
		c.TimeoutDataBlock = defaultTimeoutDataBlock
	}
	if c.TimeoutDataTerm == 0 {
		c.TimeoutDataTerm = defaultTimeoutDataTerm
	}
	return c
}
