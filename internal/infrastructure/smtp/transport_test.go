package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer speaks just enough SMTP for one submission and records the commands it saw.
type fakeServer struct {
	ln       net.Listener
	mu       sync.Mutex
	commands []string
	data     string
	authCode string
}

func startFakeServer(t *testing.T, authCode string) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return serveFake(t, ln, authCode)
}

// startFakeTLSServer listens with TLS from the first byte, like SMTPS, and returns a client config trusting it.
func startFakeTLSServer(t *testing.T, authCode string) (*fakeServer, *tls.Config) {
	t.Helper()

	certs := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(certs.Close)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: certs.TLS.Certificates})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	roots := certs.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	return serveFake(t, ln, authCode), &tls.Config{RootCAs: roots}
}

func serveFake(t *testing.T, ln net.Listener, authCode string) *fakeServer {
	s := &fakeServer{ln: ln, authCode: authCode}
	t.Cleanup(func() { ln.Close() })

	go s.serve()
	return s
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 fake ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		s.mu.Lock()
		s.commands = append(s.commands, verb)
		s.mu.Unlock()

		switch verb {
		case "EHLO":
			reply("250-fake")
			reply("250 AUTH PLAIN")
		case "AUTH":
			reply(s.authCode)
		case "MAIL", "RCPT":
			reply("250 OK")
		case "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.data = body.String()
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 unknown")
		}
	}
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) snapshot() ([]string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...), s.data
}

func TestTransportSubmitsMessage(t *testing.T) {
	t.Parallel()

	server := startFakeServer(t, "235 accepted")
	transport := NewTransport(2*time.Second, false)

	session, err := transport.Open(context.Background(), "127.0.0.1", server.port())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := session.Auth("digest@example.com", "secret"); err != nil {
		t.Fatalf("Auth: %v", err)
	}
	if err := session.Send("digest@example.com", []string{"ana@example.com"}, []byte("Subject: hi\r\n\r\nhello\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	commands, data := waitForQuit(server)

	want := []string{"EHLO", "AUTH", "MAIL", "RCPT", "DATA", "QUIT"}
	if strings.Join(commands, ",") != strings.Join(want, ",") {
		t.Fatalf("commands = %v, want %v", commands, want)
	}
	if !strings.Contains(data, "hello") {
		t.Fatalf("unexpected data %q", data)
	}
}

func waitForQuit(server *fakeServer) ([]string, string) {
	var commands []string
	var data string
	for i := 0; i < 50; i++ {
		commands, data = server.snapshot()
		if len(commands) > 0 && commands[len(commands)-1] == "QUIT" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return commands, data
}

func TestTransportImplicitTLS(t *testing.T) {
	t.Parallel()

	server, clientTLS := startFakeTLSServer(t, "235 accepted")
	transport := NewTransport(2*time.Second, true)
	transport.tlsConfig = clientTLS

	session, err := transport.Open(context.Background(), "127.0.0.1", server.port())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := session.Auth("digest@example.com", "secret"); err != nil {
		t.Fatalf("Auth: %v", err)
	}
	if err := session.Send("digest@example.com", []string{"ana@example.com"}, []byte("Subject: hi\r\n\r\nover tls\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	commands, data := waitForQuit(server)
	want := []string{"EHLO", "AUTH", "MAIL", "RCPT", "DATA", "QUIT"}
	if strings.Join(commands, ",") != strings.Join(want, ",") {
		t.Fatalf("commands = %v, want %v", commands, want)
	}
	if !strings.Contains(data, "over tls") {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestTransportPlainDialToTLSServerFails(t *testing.T) {
	t.Parallel()

	server, _ := startFakeTLSServer(t, "235 accepted")
	_, err := NewTransport(300*time.Millisecond, false).Open(context.Background(), "127.0.0.1", server.port())
	if err == nil {
		t.Fatal("expected greeting failure against an implicit TLS server")
	}
}

func TestTransportAuthRejected(t *testing.T) {
	t.Parallel()

	server := startFakeServer(t, "535 bad credentials")
	session, err := NewTransport(2*time.Second, false).Open(context.Background(), "127.0.0.1", server.port())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	err = session.Auth("digest@example.com", "wrong")
	if err == nil || !strings.Contains(err.Error(), "535") {
		t.Fatalf("expected 535 error, got %v", err)
	}
}

func TestTransportDialFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = NewTransport(time.Second, false).Open(context.Background(), "127.0.0.1", port)
	if err == nil || !strings.Contains(err.Error(), "dial 127.0.0.1:"+strconv.Itoa(port)) {
		t.Fatalf("expected dial error, got %v", err)
	}
}
