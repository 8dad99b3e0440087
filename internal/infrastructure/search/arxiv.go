package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/ports"
)

const (
	arxivBaseURL = "https://arxiv.org"
	arxivSource  = "arXiv"
)

// arXiv only accepts these result page sizes.
var arxivPageSizes = []int{25, 50, 100, 200}

var submittedExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]+, \d{4}`)

// Arxiv searches arXiv listings. Language is ignored.
type Arxiv struct {
	endpoint string
	client   *http.Client
}

var _ ports.Searcher = (*Arxiv)(nil)

// NewArxiv wires an HTTP client; a nil client gets a 30s timeout.
func NewArxiv(endpoint string, client *http.Client) *Arxiv {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Arxiv{endpoint: endpoint, client: client}
}

// Search returns up to pageSize entries for the query, newest announcements first.
func (a *Arxiv) Search(ctx context.Context, query, _ string, pageSize int) ([]domain.RawItem, error) {
	pageURL, err := buildSearchURL(a.endpoint, query, pageSize)
	if err != nil {
		return nil, err
	}

	doc, err := a.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}

	var items []domain.RawItem
	doc.Find("li.arxiv-result").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if pageSize > 0 && len(items) >= pageSize {
			return false
		}
		if item, ok := parseResult(li); ok {
			items = append(items, item)
		}
		return true
	})
	return items, nil
}

func (a *Arxiv) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "DigestPipeline/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func parseResult(li *goquery.Selection) (domain.RawItem, bool) {
	link := li.Find(".list-title a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")
	if href != "" && !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	title := collapse(li.Find("p.title").First().Text())
	if title == "" {
		return domain.RawItem{}, false
	}

	abstract := li.Find("span.abstract-full").First()
	abstract.Find("a").Remove()
	summary := collapse(abstract.Text())
	if summary == "" {
		summary = collapse(strings.TrimPrefix(collapse(li.Find("p.abstract").First().Text()), "Abstract:"))
	}

	item := domain.RawItem{
		Title:       title,
		Description: summary,
		Source:      arxivSource,
		URL:         href,
	}

	dateline := li.Find("p.is-size-7").First().Text()
	if match := submittedExpr.FindString(dateline); match != "" {
		if parsed, err := time.Parse("2 January, 2006", match); err == nil {
			item.PublishedAt = parsed
		}
	}
	return item, true
}

func buildSearchURL(base, query string, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid arxiv endpoint %s: %w", base, err)
	}

	q := parsed.Query()
	q.Set("query", query)
	q.Set("searchtype", "all")
	q.Set("abstracts", "show")
	q.Set("order", "-announced_date_first")
	q.Set("size", strconv.Itoa(arxivPageSize(pageSize)))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// arxivPageSize rounds up to the nearest size arXiv accepts.
func arxivPageSize(n int) int {
	for _, size := range arxivPageSizes {
		if n <= size {
			return size
		}
	}
	return arxivPageSizes[len(arxivPageSizes)-1]
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
