// feedcheck fetches one configured source and prints what the tolerant
// parser extracts next to gofeed's strict parse, so feed problems can be
// diagnosed without a full run.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/newswatch-hq/newswatch/internal/config"
	"github.com/newswatch-hq/newswatch/internal/feed"
)

func main() {
	var (
		key   = flag.String("source", "", "source key to inspect")
		limit = flag.Int("n", 5, "items to print per parser")
	)
	flag.Parse()

	if err := run(*key, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "feedcheck: %v\n", err)
		os.Exit(1)
	}
}

func run(key string, limit int) error {
	cfg := config.Load()

	sources := feed.DefaultSources()
	if cfg.SourcesFile != "" {
		var err error
		sources, err = feed.LoadSources(cfg.SourcesFile)
		if err != nil {
			return err
		}
	}

	src, ok := sources.ByKey(key)
	if !ok {
		return fmt.Errorf("unknown source %q (known: %v)", key, sources.Keys())
	}

	ctx, cancel := context.WithTimeout(context.Background(), feed.FetchTimeout)
	defer cancel()

	body, err := feed.NewFetcher(nil).Fetch(ctx, src.URL)
	if err != nil {
		return err
	}

	fmt.Printf("source %q (%s)\n\n", key, src.URL)

	items := feed.Parse(body)
	fmt.Printf("tolerant parser: %d item(s)\n", len(items))
	for i, item := range items {
		if i >= limit {
			break
		}
		fmt.Printf("  %-30s %s %s\n", clip(item.Title, 30), item.Link, formatDate(item.PublishedAt))
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		fmt.Printf("\nstrict parser (gofeed): %v\n", err)
		return nil
	}
	fmt.Printf("\nstrict parser (gofeed): %d item(s)\n", len(parsed.Items))
	for i, item := range parsed.Items {
		if i >= limit {
			break
		}
		fmt.Printf("  %-30s %s %s\n", clip(item.Title, 30), item.Link, formatDate(item.PublishedParsed))
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "<no date>"
	}
	return t.Format(time.RFC3339)
}
