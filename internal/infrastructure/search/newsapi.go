package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/ports"
)

// NewsAPI queries the NewsAPI "everything" endpoint.
type NewsAPI struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ ports.Searcher = (*NewsAPI)(nil)

// NewNewsAPI wires an HTTP client; a nil client gets a 30s timeout.
func NewNewsAPI(endpoint, apiKey string, client *http.Client) *NewsAPI {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NewsAPI{endpoint: endpoint, apiKey: apiKey, client: client}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Search returns up to pageSize articles sorted by relevancy.
func (n *NewsAPI) Search(ctx context.Context, query, language string, pageSize int) ([]domain.RawItem, error) {
	if n.apiKey == "" || n.endpoint == "" {
		return nil, fmt.Errorf("newsapi misconfigured")
	}

	pageURL, err := n.buildURL(query, language, pageSize)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("User-Agent", "DigestPipeline/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request newsapi: %w", err)
	}
	defer resp.Body.Close()

	var decoded newsAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("newsapi returned %s", resp.Status)
		}
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if decoded.Status == "error" || resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi error %s: %s", decoded.Code, decoded.Message)
	}

	items := make([]domain.RawItem, 0, len(decoded.Articles))
	for _, a := range decoded.Articles {
		item := domain.RawItem{
			Title:       strings.TrimSpace(a.Title),
			Description: stripHTML(a.Description),
			Body:        stripHTML(a.Content),
			Source:      a.Source.Name,
			URL:         a.URL,
		}
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = ts
		}
		items = append(items, item)
	}
	if pageSize > 0 && len(items) > pageSize {
		items = items[:pageSize]
	}
	return items, nil
}

func (n *NewsAPI) buildURL(query, language string, pageSize int) (string, error) {
	parsed, err := url.Parse(n.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid newsapi endpoint %s: %w", n.endpoint, err)
	}

	q := parsed.Query()
	q.Set("q", query)
	if language != "" {
		q.Set("language", language)
	}
	q.Set("sortBy", "relevancy")
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// stripHTML flattens snippet markup to text.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
