package ports

import (
	"context"

	"DigestPipeline/internal/domain"
)

// Prompt is a single request to a text-generation backend.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// TextGenerator produces natural-language text (search terms, synopses, titles).
type TextGenerator interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Searcher looks up raw items matching a query.
type Searcher interface {
	Search(ctx context.Context, query, language string, pageSize int) ([]domain.RawItem, error)
}

// RecipientStore loads recipients and records completed deliveries.
type RecipientStore interface {
	// GetRecipient returns nil without error when the recipient does not exist.
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	GetTopics(ctx context.Context, recipientID string) ([]domain.Topic, error)
	SaveDeliveryRecord(ctx context.Context, recipientID, title string, topics []string, channel string) (domain.DeliveryRecord, error)
}

// ContentFetcher collects raw items per topic.
type ContentFetcher interface {
	Fetch(ctx context.Context, topics []domain.Topic, language string) []domain.TopicItems
}

// Condenser turns raw items into topic bundles.
type Condenser interface {
	Condense(ctx context.Context, items []domain.TopicItems) []domain.TopicBundle
}

// Renderer builds the personalized document.
type Renderer interface {
	Render(ctx context.Context, recipient domain.Recipient, bundles []domain.TopicBundle) domain.RenderedDocument
}

// Dispatcher delivers a document over a named channel.
type Dispatcher interface {
	Supports(channel string) bool
	Dispatch(ctx context.Context, recipient domain.Recipient, doc domain.RenderedDocument, channel string) domain.DeliveryOutcome
}
