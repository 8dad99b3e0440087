package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	gosmtp "github.com/wneessen/go-mail/smtp"

	"DigestPipeline/internal/dispatch"
)

// Transport opens authenticated SMTP submission sessions.
type Transport struct {
	timeout     time.Duration
	implicitTLS bool
	tlsConfig   *tls.Config
}

var _ dispatch.Transport = (*Transport)(nil)

// NewTransport builds a transport; timeout bounds dialing and the whole session. With implicitTLS the
// connection speaks TLS from the first byte (SMTPS); otherwise STARTTLS is used when offered.
func NewTransport(timeout time.Duration, implicitTLS bool) *Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Transport{timeout: timeout, implicitTLS: implicitTLS}
}

func (t *Transport) clientTLS(host string) *tls.Config {
	if t.tlsConfig == nil {
		return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	cfg := t.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// Open dials host:port, greets the server and secures the connection.
func (t *Transport) Open(ctx context.Context, host string, port int) (dispatch.Session, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: t.timeout}

	var (
		conn net.Conn
		err  error
	)
	if t.implicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.clientTLS(host)}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := gosmtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp greeting: %w", err)
	}

	if !t.implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.clientTLS(host)); err != nil {
				client.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}

	return &session{client: client, host: host}, nil
}

type session struct {
	client *gosmtp.Client
	host   string
}

func (s *session) Auth(username, password string) error {
	if ok, _ := s.client.Extension("AUTH"); !ok {
		return fmt.Errorf("server %s does not support AUTH", s.host)
	}
	return s.client.Auth(gosmtp.PlainAuth("", username, password, s.host, false))
}

func (s *session) Send(from string, to []string, msg []byte) error {
	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := s.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish data: %w", err)
	}
	return nil
}

// Close sends QUIT, falling back to dropping the connection.
func (s *session) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}
