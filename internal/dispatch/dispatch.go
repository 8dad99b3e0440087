package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
)

// Kind tells verified delivery apart from placeholder delivery.
type Kind int

const (
	// KindReal channels perform actual transmission.
	KindReal Kind = iota
	// KindSimulated channels report success without any network I/O.
	KindSimulated
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindSimulated:
		return "simulated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Channel delivers a rendered document to one recipient.
type Channel interface {
	Name() domain.ChannelName
	Kind() Kind
	Deliver(ctx context.Context, recipient domain.Recipient, doc domain.RenderedDocument) domain.DeliveryOutcome
}

// Registry keeps a mapping from channel names to their implementations.
type Registry struct {
	channels map[domain.ChannelName]Channel
	logger   *slog.Logger
}

var _ ports.Dispatcher = (*Registry)(nil)

// NewRegistry builds a registry holding the given channels.
func NewRegistry(logger *slog.Logger, channels ...Channel) *Registry {
	r := &Registry{
		channels: map[domain.ChannelName]Channel{},
		logger:   logging.OrDiscard(logger),
	}
	for _, ch := range channels {
		r.Register(ch)
	}
	return r
}

// Register adds or replaces a channel implementation.
func (r *Registry) Register(ch Channel) {
	r.channels[ch.Name()] = ch
}

// Resolve returns a channel by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Channel, error) {
	if ch, ok := r.channels[domain.ChannelName(name)]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("unsupported channel: %s", name)
}

// Supports reports whether a channel is registered under name.
func (r *Registry) Supports(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names lists registered channels in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Dispatch delivers through the named channel. It never panics and never returns without an outcome.
func (r *Registry) Dispatch(ctx context.Context, recipient domain.Recipient, doc domain.RenderedDocument, channel string) (out domain.DeliveryOutcome) {
	ch, err := r.Resolve(channel)
	if err != nil {
		r.logger.Warn("dispatch rejected", "channel", channel, "recipient_id", recipient.ID)
		return failure(domain.ChannelName(channel), "", err.Error())
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("channel panicked", "channel", channel, "recipient_id", recipient.ID, "panic", p)
			out = failure(ch.Name(), recipient.Address(ch.Name()), fmt.Sprintf("delivery aborted: %v", p))
		}
	}()

	out = ch.Deliver(ctx, recipient, doc)
	if out.Channel == "" {
		out.Channel = ch.Name()
	}
	if ch.Kind() == KindSimulated {
		out.Simulated = true
	}

	r.logger.Info("dispatch finished",
		"channel", channel,
		"kind", ch.Kind().String(),
		"recipient_id", recipient.ID,
		"success", out.Success,
		"simulated", out.Simulated,
	)
	return out
}

func failure(channel domain.ChannelName, address, message string) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{
		Success:   false,
		Message:   message,
		Channel:   channel,
		Recipient: address,
	}
}

// missingAddress is the outcome for a recipient lacking the channel's contact field.
func missingAddress(channel domain.ChannelName, field string) domain.DeliveryOutcome {
	return failure(channel, "", fmt.Sprintf("recipient has no %s", field))
}
