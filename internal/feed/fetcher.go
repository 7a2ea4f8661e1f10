package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newswatch-hq/newswatch/pkg/httpclient"
)

// FetchTimeout bounds one feed download.
const FetchTimeout = 25 * time.Second

// fetchHeaders are sent with every feed request. Some feed hosts reject
// requests without a browser-like User-Agent.
var fetchHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":     "application/rss+xml, application/xml, text/xml, */*",
}

// Fetcher downloads raw feed documents.
type Fetcher struct {
	client httpclient.Client
}

// NewFetcher builds a Fetcher. A nil client gets the default tuned one.
func NewFetcher(client httpclient.Client) *Fetcher {
	if client == nil {
		client = httpclient.NewRestyClient(FetchTimeout)
	}
	return &Fetcher{client: client}
}

// Fetch retrieves the feed document at url. A non-2xx status is an error;
// callers treat any error as the source yielding zero items for the run.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.Get(ctx, url, fetchHeaders)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	body := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("feed returned status %d body: %s", resp.StatusCode(), responseSnippet(body))
	}
	return body, nil
}

// responseSnippet returns a truncated snippet of the response body for logging.
func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
