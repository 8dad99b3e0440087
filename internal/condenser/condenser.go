package condenser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
)

const (
	topicRole = "You are an expert at synthesizing news clearly and objectively."
	itemRole  = "You are an expert at summarizing news concisely and accurately."

	topicSeedItems = 3

	noSynopsisFallback  = "Summary not available."
	noRelevanceFallback = "Information not available."
)

// Options tunes synopsis generation.
type Options struct {
	MaxSynopsisWords int
	IncludeRelevance bool
	Concurrency      int
	CallTimeout      time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxSynopsisWords: 150,
		IncludeRelevance: true,
		Concurrency:      4,
		CallTimeout:      30 * time.Second,
	}
}

// Condenser produces topic and item synopses through the text-generation capability.
type Condenser struct {
	generator ports.TextGenerator
	opts      Options
	logger    *slog.Logger
}

var _ ports.Condenser = (*Condenser)(nil)

// New wires the generator; non-positive numeric options take defaults.
func New(generator ports.TextGenerator, opts Options, logger *slog.Logger) *Condenser {
	def := DefaultOptions()
	if opts.MaxSynopsisWords <= 0 {
		opts.MaxSynopsisWords = def.MaxSynopsisWords
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	return &Condenser{
		generator: generator,
		opts:      opts,
		logger:    logging.OrDiscard(logger),
	}
}

// Condense returns one bundle per topic in input order. Every failure degrades to a canned value.
func (c *Condenser) Condense(ctx context.Context, topics []domain.TopicItems) []domain.TopicBundle {
	bundles := make([]domain.TopicBundle, len(topics))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, topic := range topics {
		g.Go(func() error {
			bundles[i] = c.condenseTopic(ctx, topic)
			return nil
		})
	}
	_ = g.Wait()

	return bundles
}

func (c *Condenser) condenseTopic(ctx context.Context, topic domain.TopicItems) domain.TopicBundle {
	name := topic.Topic.Name
	if len(topic.Items) == 0 {
		return domain.TopicBundle{
			Topic:    name,
			Synopsis: fmt.Sprintf("No items were found for the topic %q.", name),
			Items:    []domain.CondensedItem{},
		}
	}

	bundle := domain.TopicBundle{
		Topic: name,
		Items: make([]domain.CondensedItem, len(topic.Items)),
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	g.Go(func() error {
		bundle.Synopsis = c.topicSynopsis(ctx, name, topic.Items)
		return nil
	})
	for i, item := range topic.Items {
		g.Go(func() error {
			bundle.Items[i] = c.condenseItem(ctx, name, item)
			return nil
		})
	}
	_ = g.Wait()

	return bundle
}

func (c *Condenser) topicSynopsis(ctx context.Context, topic string, items []domain.RawItem) string {
	fallback := fmt.Sprintf("Summary unavailable for %q.", topic)

	text, err := c.complete(ctx, ports.Prompt{
		System:      topicRole,
		User:        topicPrompt(topic, items),
		Temperature: 0.7,
		MaxTokens:   150,
	})
	if err != nil {
		c.logger.Warn("topic synopsis failed", "topic", topic, "error", err)
		return fallback
	}
	return text
}

func (c *Condenser) condenseItem(ctx context.Context, topic string, item domain.RawItem) domain.CondensedItem {
	text, err := c.complete(ctx, ports.Prompt{
		System:      itemRole,
		User:        itemPrompt(topic, item, c.opts.MaxSynopsisWords, c.opts.IncludeRelevance),
		Temperature: 0.7,
		MaxTokens:   250,
	})

	var synopsis, relevance string
	if err == nil {
		synopsis, relevance = ParseSynopsis(text, c.opts.IncludeRelevance)
	}
	if err != nil || synopsis == "" {
		if err != nil {
			c.logger.Warn("item synopsis failed", "topic", topic, "title", item.Title, "error", err)
		}
		synopsis = strings.TrimSpace(item.Description)
		if synopsis == "" {
			synopsis = noSynopsisFallback
		}
		if c.opts.IncludeRelevance && relevance == "" {
			relevance = noRelevanceFallback
		}
	}

	return domain.CondensedItem{
		RawItem:   item,
		Synopsis:  synopsis,
		Relevance: relevance,
	}
}

// complete bounds a generation call and treats blank output as a failure.
func (c *Condenser) complete(ctx context.Context, prompt ports.Prompt) (string, error) {
	if c.generator == nil {
		return "", fmt.Errorf("text generation is not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	text, err := c.generator.Complete(callCtx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return text, nil
}

func topicPrompt(topic string, items []domain.RawItem) string {
	var titles, descriptions []string
	for _, item := range items {
		if len(titles) < topicSeedItems {
			titles = append(titles, item.Title)
		}
		if d := strings.TrimSpace(item.Description); d != "" && len(descriptions) < topicSeedItems {
			descriptions = append(descriptions, d)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following news about %q, write a general summary that captures ", topic)
	b.WriteString("the main trends or themes in no more than 3 sentences.\n\n")
	b.WriteString("Titles:\n")
	b.WriteString(strings.Join(titles, "\n"))
	b.WriteString("\n\nDescriptions:\n")
	b.WriteString(strings.Join(descriptions, "\n"))
	b.WriteString("\n\nSummary:")
	return b.String()
}

func itemPrompt(topic string, item domain.RawItem, maxWords int, withRelevance bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following article about %q in no more than %d words.\n\n", topic, maxWords)
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	if item.Body != "" {
		fmt.Fprintf(&b, "Content: %s\n", item.Body)
	}

	if !withRelevance {
		b.WriteString("\nSummary:")
		return b.String()
	}

	b.WriteString("\nProvide:\n")
	b.WriteString("1. A concise summary\n")
	fmt.Fprintf(&b, "2. A short explanation of why this article matters to people interested in %s\n\n", topic)
	b.WriteString("Format:\nSummary: [concise summary]\nRelevance: [short explanation]")
	return b.String()
}
