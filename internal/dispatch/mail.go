package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
)

// Transport opens mail submission sessions.
type Transport interface {
	Open(ctx context.Context, host string, port int) (Session, error)
}

// Session is one authenticated submission exchange.
type Session interface {
	Auth(username, password string) error
	Send(from string, to []string, msg []byte) error
	Close() error
}

// MailSettings holds submission credentials. From defaults to Username.
type MailSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether real delivery is possible.
func (s MailSettings) Configured() bool {
	return s.Host != "" && s.Port > 0 && s.Username != "" && s.Password != ""
}

func (s MailSettings) sender() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// Mail is the only channel with real delivery. Without full credentials it simulates.
type Mail struct {
	settings  MailSettings
	transport Transport
	logger    *slog.Logger
}

var _ Channel = (*Mail)(nil)

// NewMail builds the mail channel.
func NewMail(settings MailSettings, transport Transport, logger *slog.Logger) *Mail {
	return &Mail{
		settings:  settings,
		transport: transport,
		logger:    logging.OrDiscard(logger),
	}
}

// Name returns the mail channel name.
func (m *Mail) Name() domain.ChannelName { return domain.ChannelMail }

// Kind reports mail as the real channel.
func (m *Mail) Kind() Kind { return KindReal }

// Deliver sends the document, or simulates delivery when credentials are incomplete.
func (m *Mail) Deliver(ctx context.Context, recipient domain.Recipient, doc domain.RenderedDocument) domain.DeliveryOutcome {
	to := recipient.Address(domain.ChannelMail)
	if to == "" {
		return missingAddress(domain.ChannelMail, "email address")
	}
	meta := map[string]string{"subject": doc.Subject}

	if !m.settings.Configured() || m.transport == nil {
		m.logger.Info("mail credentials not configured, simulating delivery",
			"to", to,
			"subject", doc.Subject,
			"html_bytes", len(doc.HTML),
			"text_bytes", len(doc.Text),
		)
		return domain.DeliveryOutcome{
			Success:   true,
			Message:   "simulated delivery to " + to + " (mail credentials not configured)",
			Channel:   domain.ChannelMail,
			Recipient: to,
			Simulated: true,
			Metadata:  meta,
		}
	}

	from := m.settings.sender()
	raw, err := ComposeMessage(from, to, doc)
	if err != nil {
		return failure(domain.ChannelMail, to, err.Error())
	}

	if err := m.transmit(ctx, from, to, raw); err != nil {
		m.logger.Error("mail delivery failed", "to", to, "host", m.settings.Host, "error", err)
		return failure(domain.ChannelMail, to, err.Error())
	}

	m.logger.Info("mail delivered", "to", to, "subject", doc.Subject)
	return domain.DeliveryOutcome{
		Success:   true,
		Message:   "digest sent to " + to,
		Channel:   domain.ChannelMail,
		Recipient: to,
		Metadata:  meta,
	}
}

func (m *Mail) transmit(ctx context.Context, from, to string, raw []byte) (err error) {
	session, err := m.transport.Open(ctx, m.settings.Host, m.settings.Port)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()

	if err := session.Auth(m.settings.Username, m.settings.Password); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := session.Send(from, []string{to}, raw); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// ComposeMessage builds a multipart/alternative message carrying both bodies.
func ComposeMessage(from, to string, doc domain.RenderedDocument) ([]byte, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(doc.Subject)
	if !doc.CreatedAt.IsZero() {
		msg.SetDateWithValue(doc.CreatedAt)
	}
	msg.SetBodyString(mail.TypeTextPlain, doc.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, doc.HTML)

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}
	return buf.Bytes(), nil
}
