package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
)

const (
	defaultBodyMaxChars = 4000
	bodyFetchLimit      = 4
	maxPageBytes        = 5 << 20
)

// BodyExtractor fills RawItem.Body with the readable text of each result's page.
type BodyExtractor struct {
	next     ports.Searcher
	client   *http.Client
	maxChars int
	logger   *slog.Logger
}

var _ ports.Searcher = (*BodyExtractor)(nil)

// WithBodies decorates a searcher with article body extraction. Extraction failures keep the item as is.
func WithBodies(next ports.Searcher, client *http.Client, maxChars int, logger *slog.Logger) *BodyExtractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = defaultBodyMaxChars
	}
	return &BodyExtractor{
		next:     next,
		client:   client,
		maxChars: maxChars,
		logger:   logging.OrDiscard(logger),
	}
}

func (b *BodyExtractor) Search(ctx context.Context, query, language string, pageSize int) ([]domain.RawItem, error) {
	items, err := b.next.Search(ctx, query, language, pageSize)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.SetLimit(bodyFetchLimit)
	for i := range items {
		if items[i].URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := b.extract(ctx, items[i].URL)
			if err != nil {
				b.logger.Debug("body extraction failed", "url", items[i].URL, "error", err)
				return nil
			}
			if text != "" {
				items[i].Body = text
			}
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

func (b *BodyExtractor) extract(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "DigestPipeline/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return truncate(strings.TrimSpace(article.TextContent), b.maxChars), nil
}

func truncate(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(input) <= limit {
		return input
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}
