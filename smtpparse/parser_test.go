package smtpparse

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gopistolet/smtpd/smtp"
)

func TestParseMail(t *testing.T) {
	Convey("MAIL FROM with a simple mailbox", t, func() {
		cmd, err := New().Parse("MAIL FROM:<example.email@example.com>\r\n")
		So(err, ShouldBeNil)
		mail, ok := cmd.(smtp.CmdMAIL)
		So(ok, ShouldBeTrue)
		So(mail.Path.Null, ShouldBeFalse)
		So(mail.Path.Mailbox.Local, ShouldEqual, "example.email")
		So(mail.Path.Mailbox.Domain.Domain, ShouldEqual, "example.com")
	})

	Convey("MAIL FROM with a space before the bracket", t, func() {
		cmd, err := New().Parse("MAIL FROM: <example.email@example.com>\r\n")
		So(err, ShouldBeNil)
		mail := cmd.(smtp.CmdMAIL)
		So(mail.Path.Mailbox.Local, ShouldEqual, "example.email")
	})

	Convey("MAIL FROM:<> is syntactically valid (null reverse-path)", t, func() {
		cmd, err := New().Parse("MAIL FROM:<>\r\n")
		So(err, ShouldBeNil)
		mail := cmd.(smtp.CmdMAIL)
		So(mail.Path.Null, ShouldBeTrue)
	})

	Convey("MAIL FROM with ESMTP parameters", t, func() {
		cmd, err := New().Parse("MAIL FROM:<a@b> SIZE=1024 BODY=8BITMIME\r\n")
		So(err, ShouldBeNil)
		mail := cmd.(smtp.CmdMAIL)
		So(mail.Params, ShouldResemble, []smtp.Param{
			{Keyword: "SIZE", Value: "1024"},
			{Keyword: "BODY", Value: "8BITMIME"},
		})
	})

	Convey("MAIL with no FROM is a syntax error", t, func() {
		_, err := New().Parse("MAIL\r\n")
		So(err, ShouldNotBeNil)
	})
}

func TestParseRcpt(t *testing.T) {
	Convey("RCPT TO with a simple mailbox", t, func() {
		cmd, err := New().Parse("RCPT TO:<r@y>\r\n")
		So(err, ShouldBeNil)
		rcpt := cmd.(smtp.CmdRCPT)
		So(rcpt.Path.Kind, ShouldEqual, smtp.ForwardPathMailbox)
		So(rcpt.Path.Mailbox.Local, ShouldEqual, "r")
	})

	Convey("RCPT TO:<Postmaster> is the well-known alias", t, func() {
		cmd, err := New().Parse("RCPT TO:<Postmaster>\r\n")
		So(err, ShouldBeNil)
		rcpt := cmd.(smtp.CmdRCPT)
		So(rcpt.Path.Kind, ShouldEqual, smtp.ForwardPathPostmaster)
	})
}

func TestParseOtherVerbs(t *testing.T) {
	Convey("Recognized zero-argument verbs", t, func() {
		for _, line := range []string{"DATA\r\n", "RSET\r\n", "QUIT\r\n", "NOOP\r\n", "STARTTLS\r\n"} {
			_, err := New().Parse(line)
			So(err, ShouldBeNil)
		}
	})

	Convey("An unrecognized verb yields CmdUnknown, not an error", t, func() {
		cmd, err := New().Parse("FOO BAR\r\n")
		So(err, ShouldBeNil)
		_, ok := cmd.(smtp.CmdUnknown)
		So(ok, ShouldBeTrue)
	})

	Convey("A recognized verb with trailing residue is a syntax error", t, func() {
		_, err := New().Parse("DATA garbage\r\n")
		So(err, ShouldNotBeNil)
	})

	Convey("BDAT with a size and LAST", t, func() {
		cmd, err := New().Parse("BDAT 1024 LAST\r\n")
		So(err, ShouldBeNil)
		bdat := cmd.(smtp.CmdBDAT)
		So(bdat.Size, ShouldEqual, 1024)
		So(bdat.Last, ShouldBeTrue)
	})
}
