// Command smtpd is the runnable wiring of the engine (package smtp), its
// regexp-based command grammar (package smtpparse), and the demo policy
// Handler (package demo) into a listening SMTP server.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"math/big"
	"net"
	"time"

	maildir "github.com/sloonz/go-maildir"

	"github.com/gopistolet/smtpd/demo"
	"github.com/gopistolet/smtpd/helpers"
	"github.com/gopistolet/smtpd/log"
	"github.com/gopistolet/smtpd/server"
	"github.com/gopistolet/smtpd/smtp"
	"github.com/gopistolet/smtpd/smtpparse"
)

// fileConfig is the JSON shape loaded via helpers.DecodeFile, grounded on
// the teacher's own generic config-file convention (smtp.Config's
// Port/Hostname pair in main.go, generalized here into the engine's
// richer Config plus this binary's own deployment knobs).
type fileConfig struct {
	Addr      string   `json:"addr"`
	Maildir   string   `json:"maildir"`
	Mailboxes []string `json:"mailboxes"`
	CertFile  string   `json:"cert_file"`
	KeyFile   string   `json:"key_file"`
	Banner    string   `json:"banner"`
}

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	addr := flag.String("addr", ":1025", "address to listen on")
	maildirPath := flag.String("maildir", "./maildir", "maildir root to deliver accepted mail into")
	certFile := flag.String("cert", "", "PEM certificate file for STARTTLS (self-signed if empty)")
	keyFile := flag.String("key", "", "PEM key file for STARTTLS (self-signed if empty)")
	flag.Parse()

	cfg := fileConfig{Addr: *addr, Maildir: *maildirPath, CertFile: *certFile, KeyFile: *keyFile}
	if *configPath != "" {
		if err := helpers.DecodeFile(*configPath, &cfg); err != nil {
			log.Fatalf("smtpd: %v", err)
		}
	}

	tlsConfig, err := loadTLSConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		log.Fatalf("smtpd: could not prepare TLS config: %v", err)
	}

	mailboxes := demo.NewMailboxes(cfg.Mailboxes...)
	maildirRoot := maildir.Dir(cfg.Maildir)

	// Per-phase timeouts are left zero: Config.withDefaults (called by
	// smtp.NewSession) fills them in with the RFC 5321 §4.5.3.2 values,
	// and nothing here needs a shorter deadline.
	engineConfig := smtp.Config{}
	if cfg.Banner != "" {
		engineConfig.BannerText = cfg.Banner
	}

	srv := server.New(server.Config{
		Addr:      cfg.Addr,
		TLSConfig: tlsConfig,
		Engine:    engineConfig,
		Parser:    smtpparse.New(),
		NewHandler: func(remote net.Addr) smtp.Handler {
			return demo.New(remote, tlsConfig, mailboxes, maildirRoot)
		},
	})

	log.Infof("smtpd: listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("smtpd: %v", err)
	}
}

// loadTLSConfig reads a PEM cert/key pair from disk, or falls back to a
// freshly generated self-signed certificate so the binary is runnable
// with zero configuration. Grounded on nazwhale-from-my-domain's
// transport.go selfSignedCert(), which exists for exactly this reason.
func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	var cert tls.Certificate
	var err error

	if certFile != "" && keyFile != "" {
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, err
		}
	} else {
		cert, err = selfSignedCert()
		if err != nil {
			return nil, err
		}
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	templ := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "smtpd"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, templ, templ, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	return tls.X509KeyPair(certPEM, keyPEM)
}
