package domain

import "time"

// ChannelName identifies a delivery channel and the contact address it needs.
type ChannelName string

const (
	ChannelMail     ChannelName = "mail"
	ChannelWhatsApp ChannelName = "whatsapp"
	ChannelTelegram ChannelName = "telegram"
)

// Topic is a named subject a recipient subscribes to.
type Topic struct {
	ID          string
	Name        string
	Description string
}

// Recipient is the end user a digest is generated for.
type Recipient struct {
	ID        string
	Name      string
	Addresses map[ChannelName]string
	Topics    []Topic
}

// Address returns the contact address for the channel, or an empty string.
func (r Recipient) Address(channel ChannelName) string {
	if r.Addresses == nil {
		return ""
	}
	return r.Addresses[channel]
}

// RawItem is an unprocessed content record returned by a search.
type RawItem struct {
	Title       string
	Description string
	Body        string
	Source      string
	URL         string
	PublishedAt time.Time
	Query       string
	Topic       string
}

// TopicItems groups the raw items fetched for one topic, in fetch order.
type TopicItems struct {
	Topic Topic
	Items []RawItem
}

// CondensedItem is a raw item with its synopsis and optional relevance note.
type CondensedItem struct {
	RawItem
	Synopsis  string
	Relevance string
}

// TopicBundle carries the condensed view of one topic.
type TopicBundle struct {
	Topic    string
	Synopsis string
	Items    []CondensedItem
}

// TopicNames lists bundle names in order.
func TopicNames(bundles []TopicBundle) []string {
	names := make([]string, 0, len(bundles))
	for _, b := range bundles {
		names = append(names, b.Topic)
	}
	return names
}

// Lookup returns the bundle for a topic name.
func Lookup(bundles []TopicBundle, topic string) (TopicBundle, bool) {
	for _, b := range bundles {
		if b.Topic == topic {
			return b, true
		}
	}
	return TopicBundle{}, false
}

// RenderedDocument is the final digest in both renderings.
type RenderedDocument struct {
	HTML      string
	Text      string
	Title     string
	Subject   string
	CreatedAt time.Time
	// Fallback is set when HTML came from the programmatic fallback instead of a template.
	Fallback bool
}

// DeliveryOutcome is the uniform result of a dispatch attempt.
type DeliveryOutcome struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Channel   ChannelName       `json:"channel"`
	Recipient string            `json:"recipient,omitempty"`
	Simulated bool              `json:"simulated"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DeliveryRecord is the persisted trace of a successful delivery.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Topics      []string  `json:"topics"`
	Channel     string    `json:"channel"`
	SentAt      time.Time `json:"sent_at"`
}
