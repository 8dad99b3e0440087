package dispatch

import (
	"context"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
)

// telegramTextLimit is the Bot API cap on message text, counted after entity parsing.
const telegramTextLimit = 4096

// WhatsApp is a placeholder channel: it validates the phone number and logs the would-be delivery.
type WhatsApp struct {
	logger *slog.Logger
}

var _ Channel = (*WhatsApp)(nil)

// NewWhatsApp builds the simulated WhatsApp channel.
func NewWhatsApp(logger *slog.Logger) *WhatsApp {
	return &WhatsApp{logger: logging.OrDiscard(logger)}
}

// Name returns the whatsapp channel name.
func (w *WhatsApp) Name() domain.ChannelName { return domain.ChannelWhatsApp }

// Kind reports WhatsApp as simulated.
func (w *WhatsApp) Kind() Kind { return KindSimulated }

// Deliver logs the would-be message for the recipient's phone number.
func (w *WhatsApp) Deliver(_ context.Context, recipient domain.Recipient, doc domain.RenderedDocument) domain.DeliveryOutcome {
	phone := recipient.Address(domain.ChannelWhatsApp)
	if phone == "" {
		return missingAddress(domain.ChannelWhatsApp, "phone number")
	}

	w.logger.Info("simulated whatsapp delivery", "to", phone, "title", doc.Title, "chars", utf8.RuneCountInString(doc.Text))
	return domain.DeliveryOutcome{
		Success:   true,
		Message:   "simulated whatsapp delivery to " + phone,
		Channel:   domain.ChannelWhatsApp,
		Recipient: phone,
		Simulated: true,
		Metadata:  map[string]string{"subject": doc.Subject},
	}
}

// Telegram prepares a Bot API message for the recipient's handle and logs it without sending.
type Telegram struct {
	logger *slog.Logger
}

var _ Channel = (*Telegram)(nil)

// NewTelegram builds the simulated Telegram channel.
func NewTelegram(logger *slog.Logger) *Telegram {
	return &Telegram{logger: logging.OrDiscard(logger)}
}

// Name returns the telegram channel name.
func (t *Telegram) Name() domain.ChannelName { return domain.ChannelTelegram }

// Kind reports Telegram as simulated.
func (t *Telegram) Kind() Kind { return KindSimulated }

// Deliver prepares the Bot API message and logs it without sending.
func (t *Telegram) Deliver(_ context.Context, recipient domain.Recipient, doc domain.RenderedDocument) domain.DeliveryOutcome {
	handle := recipient.Address(domain.ChannelTelegram)
	if handle == "" {
		return missingAddress(domain.ChannelTelegram, "telegram handle")
	}

	msg, truncated := TelegramMessage(handle, doc)
	t.logger.Info("simulated telegram delivery",
		"to", handle,
		"title", doc.Title,
		"parse_mode", msg.ParseMode,
		"bytes", len(msg.Text),
		"truncated", truncated,
	)

	return domain.DeliveryOutcome{
		Success:   true,
		Message:   "simulated telegram delivery to " + handle,
		Channel:   domain.ChannelTelegram,
		Recipient: handle,
		Simulated: true,
		Metadata: map[string]string{
			"subject":   doc.Subject,
			"truncated": strconv.FormatBool(truncated),
		},
	}
}

// TelegramMessage builds the HTML message for a numeric chat id or a public @handle. The visible text
// is cut to the Bot API limit.
func TelegramMessage(handle string, doc domain.RenderedDocument) (tgbotapi.MessageConfig, bool) {
	title, titleCut := truncateRunes(doc.Title, telegramTextLimit-2)
	budget := telegramTextLimit - utf8.RuneCountInString(title) - 2
	body, bodyCut := truncateRunes(doc.Text, budget)
	truncated := titleCut || bodyCut

	text := "<b>" + html.EscapeString(title) + "</b>\n\n" + html.EscapeString(body)

	var msg tgbotapi.MessageConfig
	if chatID, err := strconv.ParseInt(handle, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(chatID, text)
	} else {
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		msg = tgbotapi.NewMessageToChannel(handle, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg, truncated
}

func truncateRunes(s string, limit int) (string, bool) {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:limit]), true
}
