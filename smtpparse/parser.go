// Package smtpparse is the grammar-level Command Parser Adapter's
// concrete implementation: it consumes one framed SMTP line and yields a
// smtp.Command or a syntax error. The engine (package smtp) treats this
// grammar as an external, abstract capability behind smtp.CommandParser;
// this package is the reference grammar it's shipped with.
//
// Grounded on the teacher's parseLine/fromRegex/toRegex/parseFROM/parseTO
// in smtp/protocol.go (and smtp/smtp.go), generalized from "FROM/TO only"
// to the full RFC 5321 + ESMTP verb set spec.md §3 names. Regexp-based,
// like the teacher: no pack library ships an SMTP grammar (the original
// Rust reference's `rustyknife` crate has no Go counterpart in the
// retrieval pack), so this is the corpus's own idiom, not a stdlib
// fallback of convenience.
package smtpparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gopistolet/smtpd/smtp"
)

var (
	mailArgRe = regexp.MustCompile(`(?i)^FROM:\s*(<[^>]*>)\s*(.*)$`)
	rcptArgRe = regexp.MustCompile(`(?i)^TO:\s*(<[^>]*>)\s*(.*)$`)
)

// Parser is the reference smtp.CommandParser implementation.
type Parser struct{}

// New returns a ready-to-use Parser. Parser holds no state; a single
// instance may be shared across sessions.
func New() *Parser {
	return &Parser{}
}

// Parse implements smtp.CommandParser.
func (Parser) Parse(line string) (smtp.Command, error) {
	line = strings.TrimSuffix(line, "\r\n")
	line = strings.TrimSuffix(line, "\n")

	verb, rest := splitVerb(line)
	upper := strings.ToUpper(verb)

	switch upper {
	case "HELO":
		if rest == "" {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdHELO{Domain: rest}, nil

	case "EHLO":
		if rest == "" {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdEHLO{Domain: rest}, nil

	case "MAIL":
		m := mailArgRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, &smtp.SyntaxError{Line: line}
		}
		path, err := parseReversePath(m[1])
		if err != nil {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdMAIL{Path: path, Params: parseParams(m[2])}, nil

	case "RCPT":
		m := rcptArgRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, &smtp.SyntaxError{Line: line}
		}
		path, err := parseForwardPath(m[1])
		if err != nil {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdRCPT{Path: path, Params: parseParams(m[2])}, nil

	case "DATA":
		if rest != "" {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdDATA{}, nil

	case "RSET":
		if rest != "" {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdRSET{}, nil

	case "QUIT":
		if rest != "" {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdQUIT{}, nil

	case "NOOP":
		return smtp.CmdNOOP{}, nil

	case "STARTTLS":
		if rest != "" {
			return nil, &smtp.SyntaxError{Line: line}
		}
		return smtp.CmdSTARTTLS{}, nil

	case "VRFY":
		return smtp.CmdVRFY{Param: rest}, nil

	case "EXPN":
		return smtp.CmdEXPN{ListName: rest}, nil

	case "HELP":
		return smtp.CmdHELP{Topic: rest}, nil

	case "BDAT":
		return parseBDAT(rest, line)

	case "":
		return nil, &smtp.SyntaxError{Line: line}

	default:
		return smtp.CmdUnknown{Line: line}, nil
	}
}

func splitVerb(line string) (verb, rest string) {
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return strings.TrimSpace(line), ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

func parseParams(rest string) []smtp.Param {
	if rest == "" {
		return nil
	}
	fields := strings.Fields(rest)
	params := make([]smtp.Param, 0, len(fields))
	for _, f := range fields {
		if eq := strings.IndexByte(f, '='); eq >= 0 {
			params = append(params, smtp.Param{Keyword: f[:eq], Value: f[eq+1:]})
		} else {
			params = append(params, smtp.Param{Keyword: f})
		}
	}
	return params
}

func parseReversePath(bracketed string) (smtp.ReversePath, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(bracketed, "<"), ">")
	if inner == "" {
		return smtp.ReversePath{Null: true}, nil
	}

	sourceRoute, addr := splitSourceRoute(inner)
	mbox, err := smtp.ParseMailbox(addr)
	if err != nil {
		return smtp.ReversePath{}, err
	}
	return smtp.ReversePath{Mailbox: mbox, SourceRoute: sourceRoute}, nil
}

func parseForwardPath(bracketed string) (smtp.ForwardPath, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(bracketed, "<"), ">")
	if strings.EqualFold(inner, "Postmaster") {
		return smtp.ForwardPath{Kind: smtp.ForwardPathPostmaster}, nil
	}

	_, addr := splitSourceRoute(inner)
	mbox, err := smtp.ParseMailbox(addr)
	if err != nil {
		return smtp.ForwardPath{}, err
	}
	return smtp.ForwardPath{Kind: smtp.ForwardPathMailbox, Mailbox: mbox}, nil
}

// splitSourceRoute splits the rarely-used "@host1,@host2:user@domain"
// source-route prefix (RFC 5321 §4.1.2) from the mailbox that follows
// the final colon. Most addresses have no source route.
func splitSourceRoute(inner string) (route, addr string) {
	if strings.HasPrefix(inner, "@") {
		if i := strings.IndexByte(inner, ':'); i >= 0 {
			return inner[:i], inner[i+1:]
		}
	}
	return "", inner
}

func parseBDAT(rest, line string) (smtp.Command, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 || len(fields) > 2 {
		return nil, &smtp.SyntaxError{Line: line}
	}
	size, err := strconv.Atoi(fields[0])
	if err != nil || size < 0 {
		return nil, &smtp.SyntaxError{Line: line}
	}
	last := false
	if len(fields) == 2 {
		if !strings.EqualFold(fields[1], "LAST") {
			return nil, &smtp.SyntaxError{Line: line}
		}
		last = true
	}
	return smtp.CmdBDAT{Size: size, Last: last}, nil
}
