package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetcherFetch(t *testing.T) {
	const doc = `<rss><channel><item><link>https://example.com/a</link></item></channel></rss>`

	var gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Write([]byte(doc))
	}))
	defer srv.Close()

	body, err := NewFetcher(nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(body) != doc {
		t.Errorf("Fetch() body = %q, want %q", body, doc)
	}
	if !strings.Contains(gotUserAgent, "Mozilla") {
		t.Errorf("User-Agent = %q, want a browser-like value", gotUserAgent)
	}
}

func TestFetcherFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewFetcher(nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() expected error for 404 status")
	}
}

func TestFetcherFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	if _, err := NewFetcher(nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() expected error for unreachable host")
	}
}
