// Package server is the TCP listener and connection accept loop — an
// external collaborator the engine (package smtp) treats only through
// its Transport/Handler interfaces (spec.md §1). Grounded on the
// teacher's Server.ListenAndServe/Server.Serve/newConn in smtp/smtp.go
// and the reference engine driver's DefaultMta.ListenAndServe/listen/serve
// in mta.go (temporary-Accept-error handling, one goroutine per
// connection).
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/gopistolet/smtpd/log"
	"github.com/gopistolet/smtpd/smtp"
)

// Config bundles what's needed to listen and hand connections to the
// engine.
type Config struct {
	Addr       string
	TLSConfig  *tls.Config // not read by Server; STARTTLS is offered or refused by the Handler's TLSRequest
	Engine     smtp.Config
	Parser     smtp.CommandParser
	NewHandler func(remote net.Addr) smtp.Handler
}

// Server listens for TCP connections and drives one smtp.Session per
// connection, each in its own goroutine, exactly as the teacher's
// Server.Serve does.
type Server struct {
	config Config
}

// New constructs a Server. It does not start listening.
func New(config Config) *Server {
	return &Server{config: config}
}

// ListenAndServe opens a TCP listener on config.Addr and serves it.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until it returns a non-temporary
// error, dispatching each to its own session goroutine.
func (s *Server) Serve(ln net.Listener) error {
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Warnf("server: temporary accept error: %v", err)
				continue
			}
			return err
		}

		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	remote := conn.RemoteAddr()
	log.WithFields(log.Fields{"remote": remote}).Debug("server: accepted connection")

	handler := s.config.NewHandler(remote)
	session := smtp.NewSession(smtp.NewTransport(conn), s.config.Parser, handler, s.config.Engine)

	if err := session.Serve(context.Background()); err != nil {
		log.WithFields(log.Fields{"remote": remote}).Warnf("server: session ended: %v", err)
		return
	}
	log.WithFields(log.Fields{"remote": remote}).Debug("server: session ended cleanly")
}
