package smtp

import (
	"fmt"
	"strconv"
	"strings"
)

// EnhancedStatus is the RFC 2034 enhanced status code triple
// (class.subject.detail), e.g. {2, 1, 0} for "2.1.0".
type EnhancedStatus struct {
	Class, Subject, Detail int
}

func (s EnhancedStatus) String() string {
	return fmt.Sprintf("%d.%d.%d", s.Class, s.Subject, s.Detail)
}

// Reply is a numeric SMTP reply: a three-digit code, an optional
// enhanced status, and a message that may embed '\n' to request
// multi-line continuation. Grounded on the teacher's Answer/MultiAnswer
// types in smtp/protocol.go, generalized with the enhanced-status field
// smtpbis's Reply carries and the teacher's does not.
type Reply struct {
	Code           int
	EnhancedStatus *EnhancedStatus
	Message        string
}

// NewReply builds a Reply with no enhanced status.
func NewReply(code int, message string) *Reply {
	return &Reply{Code: code, Message: message}
}

// NewEnhancedReply builds a Reply carrying an enhanced status code.
func NewEnhancedReply(code int, status EnhancedStatus, message string) *Reply {
	return &Reply{Code: code, EnhancedStatus: &status, Message: message}
}

// Render produces the wire-format multi-line reply per RFC 5321 §4.2: for
// N internal lines split on embedded '\n', lines 1..N-1 are
// "CCC-[status ]text\r\n" and line N is "CCC [status ]text\r\n".
func (r *Reply) Render() string {
	lines := strings.Split(r.Message, "\n")
	code := strconv.Itoa(r.Code)

	var status string
	if r.EnhancedStatus != nil {
		status = r.EnhancedStatus.String() + " "
	}

	var b strings.Builder
	for i, line := range lines {
		b.WriteString(code)
		if i == len(lines)-1 {
			b.WriteByte(' ')
		} else {
			b.WriteByte('-')
		}
		b.WriteString(status)
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.String()
}
