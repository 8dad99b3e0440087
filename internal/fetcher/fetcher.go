package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
)

const searchTermsRole = "You are an expert assistant at finding relevant news."

var numbering = regexp.MustCompile(`^(\d+[.)]|[-*•])\s+`)

// Options tunes per-topic collection.
type Options struct {
	QueriesPerTopic  int
	MaxItemsPerTopic int
	PageSize         int
	Concurrency      int
	CallTimeout      time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		QueriesPerTopic:  3,
		MaxItemsPerTopic: 3,
		PageSize:         5,
		Concurrency:      4,
		CallTimeout:      30 * time.Second,
	}
}

// Fetcher derives search queries per topic and collects raw items for them.
type Fetcher struct {
	generator ports.TextGenerator
	searcher  ports.Searcher
	opts      Options
	logger    *slog.Logger
}

var _ ports.ContentFetcher = (*Fetcher)(nil)

// New wires the generation and search capabilities; zero option values take defaults.
func New(generator ports.TextGenerator, searcher ports.Searcher, opts Options, logger *slog.Logger) *Fetcher {
	def := DefaultOptions()
	if opts.QueriesPerTopic <= 0 {
		opts.QueriesPerTopic = def.QueriesPerTopic
	}
	if opts.MaxItemsPerTopic <= 0 {
		opts.MaxItemsPerTopic = def.MaxItemsPerTopic
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	return &Fetcher{
		generator: generator,
		searcher:  searcher,
		opts:      opts,
		logger:    logging.OrDiscard(logger),
	}
}

// Fetch returns one entry per topic, in input order. Failures degrade to fewer items, never an error.
func (f *Fetcher) Fetch(ctx context.Context, topics []domain.Topic, language string) []domain.TopicItems {
	results := make([]domain.TopicItems, len(topics))

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, topic := range topics {
		g.Go(func() error {
			results[i] = domain.TopicItems{
				Topic: topic,
				Items: f.fetchTopic(ctx, topic, language),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *Fetcher) fetchTopic(ctx context.Context, topic domain.Topic, language string) []domain.RawItem {
	queries := f.searchTerms(ctx, topic)
	f.logger.Debug("search terms", "topic", topic.Name, "queries", queries)

	items := make([]domain.RawItem, 0, f.opts.MaxItemsPerTopic)
	for _, query := range queries {
		found, err := f.search(ctx, query, language)
		if err != nil {
			f.logger.Warn("search failed", "topic", topic.Name, "query", query, "error", err)
			continue
		}

		for _, item := range found {
			item.Query = query
			item.Topic = topic.Name
			items = append(items, item)
		}

		if len(items) >= f.opts.MaxItemsPerTopic {
			items = items[:f.opts.MaxItemsPerTopic]
			break
		}
	}

	f.logger.Debug("topic fetched", "topic", topic.Name, "items", len(items))
	return items
}

func (f *Fetcher) search(ctx context.Context, query, language string) ([]domain.RawItem, error) {
	if f.searcher == nil {
		return nil, fmt.Errorf("search capability is not configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, f.opts.CallTimeout)
	defer cancel()
	return f.searcher.Search(callCtx, query, language, f.opts.PageSize)
}

// searchTerms asks the generator for queries; any failure degrades to the topic name alone.
func (f *Fetcher) searchTerms(ctx context.Context, topic domain.Topic) []string {
	fallback := []string{topic.Name}
	if f.generator == nil {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, f.opts.CallTimeout)
	defer cancel()

	text, err := f.generator.Complete(callCtx, ports.Prompt{
		System:      searchTermsRole,
		User:        searchTermsPrompt(topic, f.opts.QueriesPerTopic),
		Temperature: 0.7,
		MaxTokens:   100,
	})
	if err != nil {
		f.logger.Warn("search term generation failed", "topic", topic.Name, "error", err)
		return fallback
	}

	terms := ParseSearchTerms(text, f.opts.QueriesPerTopic)
	if len(terms) == 0 {
		return fallback
	}
	return terms
}

func searchTermsPrompt(topic domain.Topic, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I need to find recent news about the topic: %q.\n", topic.Name)
	if desc := strings.TrimSpace(topic.Description); desc != "" {
		fmt.Fprintf(&b, "Additional description: %s\n", desc)
	}
	fmt.Fprintf(&b, "\nProvide %d search terms or phrases that can be used with a news search API ", count)
	b.WriteString("to find recent, relevant articles about this subject.\n")
	b.WriteString("Answer only with the terms separated by commas, without numbering or additional text.")
	return b.String()
}

// ParseSearchTerms splits a comma-separated model answer into at most limit clean queries.
func ParseSearchTerms(text string, limit int) []string {
	var terms []string
	for _, part := range strings.Split(text, ",") {
		term := numbering.ReplaceAllString(strings.TrimSpace(part), "")
		term = strings.Trim(term, "\"'“”‘’ \t\r\n")
		if term == "" {
			continue
		}
		terms = append(terms, term)
		if limit > 0 && len(terms) == limit {
			break
		}
	}
	return terms
}
