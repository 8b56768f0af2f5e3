package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

const (
	feedPrefix   = "feed:"
	searchPrefix = "search:"
	maxFeedItems = 20
)

// HTTPFetcher fetches pages over HTTP, extracting readable text. Feed
// sources parse as RSS/Atom; search sources resolve through a results-page
// URL template.
type HTTPFetcher struct {
	client    *http.Client
	feeds     *gofeed.Parser
	searchURL string // %s template for search: descriptors
	userAgent string
}

// NewHTTPFetcher creates an HTTP fetcher with the given per-source timeout.
func NewHTTPFetcher(timeout time.Duration, searchURL, userAgent string) *HTTPFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "Narrahunt/1.0 (research crawler)"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		feeds:     gofeed.NewParser(),
		searchURL: searchURL,
		userAgent: userAgent,
	}
}

// Fetch resolves one source descriptor.
func (f *HTTPFetcher) Fetch(ctx context.Context, source string) (*Page, error) {
	switch {
	case strings.HasPrefix(source, feedPrefix):
		return f.fetchFeed(ctx, source)
	case strings.HasPrefix(source, searchPrefix):
		return f.fetchSearch(ctx, source)
	default:
		return f.fetchPage(ctx, source, source)
	}
}

func (f *HTTPFetcher) fetchPage(ctx context.Context, source, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("extracting content: %w", err)}
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < 100 {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("no extractable content")}
	}

	return &Page{
		SourceID:  source,
		Title:     article.Title,
		Text:      text,
		FetchedAt: time.Now(),
	}, nil
}

// fetchFeed flattens recent feed entries into one text block so the
// extractor sees titles and summaries together.
func (f *HTTPFetcher) fetchFeed(ctx context.Context, source string) (*Page, error) {
	feedURL := strings.TrimPrefix(source, feedPrefix)

	feed, err := f.feeds.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	var parts []string
	for i, item := range feed.Items {
		if i >= maxFeedItems {
			break
		}
		parts = append(parts, item.Title)
		if item.Description != "" {
			parts = append(parts, item.Description)
		}
		if item.Content != "" {
			parts = append(parts, item.Content)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("feed has no entries")}
	}

	return &Page{
		SourceID:  source,
		Title:     feed.Title,
		Text:      text,
		FetchedAt: time.Now(),
	}, nil
}

func (f *HTTPFetcher) fetchSearch(ctx context.Context, source string) (*Page, error) {
	if f.searchURL == "" {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("no search URL configured")}
	}
	query := strings.TrimPrefix(source, searchPrefix)
	resultsURL := fmt.Sprintf(f.searchURL, url.QueryEscape(query))
	return f.fetchPage(ctx, source, resultsURL)
}
