package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gopistolet/smtpd/smtp"
	"github.com/gopistolet/smtpd/smtpparse"
)

type acceptAllHandler struct{}

func (acceptAllHandler) TLSRequest(context.Context) *tls.Config                  { return nil }
func (acceptAllHandler) TLSStarted(context.Context, tls.ConnectionState)         {}
func (acceptAllHandler) Mail(context.Context, smtp.ReversePath, []smtp.Param) smtp.HandlerResult {
	return smtp.Accept(nil)
}
func (acceptAllHandler) Rcpt(context.Context, smtp.ForwardPath, []smtp.Param) smtp.HandlerResult {
	return smtp.Accept(nil)
}
func (acceptAllHandler) DataStart(context.Context) smtp.HandlerResult { return smtp.Accept(nil) }
func (acceptAllHandler) Data(context.Context, *smtp.BodyStream) *smtp.Reply {
	return smtp.NewReply(250, "ok")
}

func TestServeAcceptsConnections(t *testing.T) {
	Convey("A listener hands each connection to its own session", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)

		srv := New(Config{
			Parser: smtpparse.New(),
			Engine: smtp.Config{},
			NewHandler: func(net.Addr) smtp.Handler {
				return acceptAllHandler{}
			},
		})

		done := make(chan error, 1)
		go func() { done <- srv.Serve(ln) }()

		conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		So(err, ShouldBeNil)
		defer conn.Close()

		reader := bufio.NewReader(conn)
		banner, err := reader.ReadString('\n')
		So(err, ShouldBeNil)
		So(banner, ShouldContainSubstring, "220")

		_, _ = conn.Write([]byte("QUIT\r\n"))
		_, err = reader.ReadString('\n')
		So(err, ShouldBeNil)

		ln.Close()
		<-done
	})
}
