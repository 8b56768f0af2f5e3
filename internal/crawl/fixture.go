package crawl

import (
	"context"
	"fmt"
	"time"
)

// FixtureFetcher serves canned text keyed by source descriptor. It backs
// tests and offline demo runs; the engine treats it like any other
// crawler, never as a special case.
type FixtureFetcher struct {
	Pages map[string]string
}

// NewFixtureFetcher creates a fixture fetcher from a source-to-text map.
func NewFixtureFetcher(pages map[string]string) *FixtureFetcher {
	return &FixtureFetcher{Pages: pages}
}

// Fetch returns the canned text for a source, or a FetchError when the
// fixture has none.
func (f *FixtureFetcher) Fetch(_ context.Context, source string) (*Page, error) {
	text, ok := f.Pages[source]
	if !ok {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("no fixture for source")}
	}
	return &Page{
		SourceID:  source,
		Text:      text,
		FetchedAt: time.Now(),
	}, nil
}
