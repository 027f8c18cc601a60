package smtp_test

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gopistolet/smtpd/smtp"
	"github.com/gopistolet/smtpd/smtpparse"
)

type starttlsHandler struct {
	acceptAllHandler
	tlsConfig *tls.Config
}

func (h *starttlsHandler) TLSRequest(context.Context) *tls.Config { return h.tlsConfig }

func TestStartTLSPipeliningViolation(t *testing.T) {
	Convey("Bytes pipelined past STARTTLS before the 220 are rejected", t, func() {
		serverConn, clientConn := net.Pipe()
		handler := &starttlsHandler{tlsConfig: &tls.Config{}}
		session := smtp.NewSession(smtp.NewTransport(serverConn), smtpparse.New(), handler, smtp.Config{})

		serveErr := make(chan error, 1)
		go func() { serveErr <- session.Serve(context.Background()) }()

		go func() {
			_, _ = clientConn.Write([]byte("STARTTLS\r\nEHLO a\r\n"))
		}()

		reader := bufio.NewReader(clientConn)
		banner, err := reader.ReadString('\n')
		So(err, ShouldBeNil)
		So(banner, ShouldContainSubstring, "220")

		// No further reply should ever arrive: the engine fails closed
		// before writing the STARTTLS 220 or the EHLO reply.
		_, err = reader.ReadString('\n')
		So(err, ShouldNotBeNil)

		result := <-serveErr
		So(errors.Is(result, smtp.ErrPipelining), ShouldBeTrue)

		clientConn.Close()
	})
}
