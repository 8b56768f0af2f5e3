// Package crawl is the crawler collaborator: it resolves source
// descriptors (page URLs, feed: URLs, search: queries) into plain text for
// the extraction pipeline. The engine only consumes the returned text and
// source identifier; everything else here is presentation-stripping.
package crawl

import (
	"context"
	"fmt"
	"time"
)

// Page is the fetched text for one source descriptor.
type Page struct {
	SourceID  string
	Title     string
	Text      string
	FetchedAt time.Time
}

// FetchError is a per-source failure. Never fatal: the engine leaves the
// source in its cell's queue for retry on the next activation.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher resolves one source descriptor into page text.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (*Page, error)
}
