package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
)

// FailureCode classifies a run-level failure.
type FailureCode string

const (
	CodeRecipientNotFound  FailureCode = "RECIPIENT_NOT_FOUND"
	CodeNoTopics           FailureCode = "NO_TOPICS"
	CodeStorageError       FailureCode = "STORAGE_ERROR"
	CodeUnsupportedChannel FailureCode = "UNSUPPORTED_CHANNEL"
	CodeCancelled          FailureCode = "CANCELLED"
	CodeDeliveryFailed     FailureCode = "DELIVERY_FAILED"
)

// RunRequest asks for one digest for one recipient.
type RunRequest struct {
	RecipientID        string `json:"recipient_id"`
	Channel            string `json:"channel"`
	Language           string `json:"language"`
	UsePlaceholderData bool   `json:"use_placeholder_data"`
}

// RunResult is the terminal value of a run. Failures are reported here, never as errors.
type RunResult struct {
	Success     bool                    `json:"success"`
	Code        FailureCode             `json:"code,omitempty"`
	Message     string                  `json:"message"`
	RecipientID string                  `json:"recipient_id"`
	Channel     string                  `json:"channel"`
	Topics      []string                `json:"topics"`
	Title       string                  `json:"title,omitempty"`
	Delivery    *domain.DeliveryOutcome `json:"delivery,omitempty"`
	Record      *domain.DeliveryRecord  `json:"record,omitempty"`
}

// PlaceholderData replaces storage lookups in placeholder runs.
type PlaceholderData struct {
	Recipient domain.Recipient
	Topics    []domain.Topic
}

// DefaultPlaceholder is the fixed profile used when no other placeholder is wired.
func DefaultPlaceholder() PlaceholderData {
	return PlaceholderData{
		Recipient: domain.Recipient{
			ID:   "placeholder",
			Name: "Ana",
			Addresses: map[domain.ChannelName]string{
				domain.ChannelMail:     "ana@example.com",
				domain.ChannelWhatsApp: "+1234567890",
				domain.ChannelTelegram: "12345678",
			},
		},
		Topics: []domain.Topic{
			{ID: "1", Name: "AI", Description: "Advances in artificial intelligence and machine learning"},
		},
	}
}

// PipelineDeps wires the stages and collaborators into the orchestrator.
type PipelineDeps struct {
	Store           ports.RecipientStore
	Fetcher         ports.ContentFetcher
	Condenser       ports.Condenser
	Renderer        ports.Renderer
	Dispatcher      ports.Dispatcher
	Placeholder     *PlaceholderData
	DefaultChannel  string
	DefaultLanguage string
	Concurrency     int
	Logger          *slog.Logger
}

// Pipeline runs fetch, condense, render and dispatch for one recipient at a time.
type Pipeline struct {
	store           ports.RecipientStore
	fetcher         ports.ContentFetcher
	condenser       ports.Condenser
	renderer        ports.Renderer
	dispatcher      ports.Dispatcher
	placeholder     PlaceholderData
	defaultChannel  string
	defaultLanguage string
	concurrency     int
	logger          *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		store:           deps.Store,
		fetcher:         deps.Fetcher,
		condenser:       deps.Condenser,
		renderer:        deps.Renderer,
		dispatcher:      deps.Dispatcher,
		placeholder:     DefaultPlaceholder(),
		defaultChannel:  deps.DefaultChannel,
		defaultLanguage: deps.DefaultLanguage,
		concurrency:     deps.Concurrency,
		logger:          logging.OrDiscard(deps.Logger),
	}
	if deps.Placeholder != nil {
		p.placeholder = *deps.Placeholder
	}
	if p.defaultChannel == "" {
		p.defaultChannel = string(domain.ChannelMail)
	}
	if p.defaultLanguage == "" {
		p.defaultLanguage = "en"
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	return p
}

// Run executes one digest run and always returns a result.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) RunResult {
	channel := req.Channel
	if channel == "" {
		channel = p.defaultChannel
	}
	language := req.Language
	if language == "" {
		language = p.defaultLanguage
	}

	res := RunResult{RecipientID: req.RecipientID, Channel: channel, Topics: []string{}}
	logger := p.logger.With("recipient_id", req.RecipientID, "channel", channel, "placeholder", req.UsePlaceholderData)

	if p.dispatcher == nil || !p.dispatcher.Supports(channel) {
		return fail(res, CodeUnsupportedChannel, "unsupported channel: "+channel)
	}

	recipient, topics, code, err := p.load(ctx, req)
	if err != nil {
		logger.Warn("run aborted", "code", code, "error", err)
		return fail(res, code, err.Error())
	}
	recipient.Topics = topics
	res.RecipientID = recipient.ID
	for _, t := range topics {
		res.Topics = append(res.Topics, t.Name)
	}

	logger.Info("fetching content", "topics", len(topics), "language", language)
	items := p.fetcher.Fetch(ctx, topics, language)
	if err := ctx.Err(); err != nil {
		return fail(res, CodeCancelled, err.Error())
	}

	logger.Info("condensing content")
	bundles := p.condenser.Condense(ctx, items)
	if err := ctx.Err(); err != nil {
		return fail(res, CodeCancelled, err.Error())
	}

	logger.Info("rendering document")
	doc := p.renderer.Render(ctx, *recipient, bundles)
	res.Title = doc.Title
	if err := ctx.Err(); err != nil {
		return fail(res, CodeCancelled, err.Error())
	}

	logger.Info("dispatching", "subject", doc.Subject)
	outcome := p.dispatcher.Dispatch(ctx, *recipient, doc, channel)
	res.Delivery = &outcome
	if !outcome.Success {
		logger.Warn("delivery failed", "message", outcome.Message)
		return fail(res, CodeDeliveryFailed, outcome.Message)
	}

	res.Success = true
	res.Message = outcome.Message

	if req.UsePlaceholderData || p.store == nil {
		return res
	}
	record, err := p.store.SaveDeliveryRecord(ctx, recipient.ID, doc.Title, domain.TopicNames(bundles), channel)
	if err != nil {
		logger.Error("persist delivery record failed", "error", err)
		return res
	}
	res.Record = &record
	return res
}

// RunMany runs independent requests concurrently and returns results in input order.
func (p *Pipeline) RunMany(ctx context.Context, reqs []RunRequest) []RunResult {
	results := make([]RunResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = p.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pipeline) load(ctx context.Context, req RunRequest) (*domain.Recipient, []domain.Topic, FailureCode, error) {
	if req.UsePlaceholderData {
		recipient := p.placeholder.Recipient
		if req.RecipientID != "" {
			recipient.ID = req.RecipientID
		}
		topics := append([]domain.Topic(nil), p.placeholder.Topics...)
		if len(topics) == 0 {
			return nil, nil, CodeNoTopics, fmt.Errorf("recipient %s has no topics", recipient.ID)
		}
		return &recipient, topics, "", nil
	}

	if p.store == nil {
		return nil, nil, CodeStorageError, fmt.Errorf("recipient store is not configured")
	}

	recipient, err := p.store.GetRecipient(ctx, req.RecipientID)
	if err != nil {
		return nil, nil, CodeStorageError, fmt.Errorf("load recipient: %w", err)
	}
	if recipient == nil {
		return nil, nil, CodeRecipientNotFound, fmt.Errorf("recipient not found: %s", req.RecipientID)
	}

	topics, err := p.store.GetTopics(ctx, recipient.ID)
	if err != nil {
		return nil, nil, CodeStorageError, fmt.Errorf("load topics: %w", err)
	}
	if len(topics) == 0 {
		return nil, nil, CodeNoTopics, fmt.Errorf("recipient %s has no topics", recipient.ID)
	}
	return recipient, topics, "", nil
}

func fail(res RunResult, code FailureCode, message string) RunResult {
	res.Success = false
	res.Code = code
	res.Message = message
	return res
}
