package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newswatch-hq/newswatch/internal/domain"
	"github.com/newswatch-hq/newswatch/pkg/publishers"
)

var fixedNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func testDispatcher() *Dispatcher {
	return New(nil, nil, nil, nil).WithClock(func() time.Time { return fixedNow })
}

func TestDeliverSuccess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Write([]byte(`{"output":"ok"}`))
	}))
	defer srv.Close()

	d := testDispatcher().Deliver(context.Background(), srv.URL, "https://example.com/a", "A title", "TechCrunch AI")
	if d.Failed {
		t.Fatalf("Deliver() failed: %q", d.Text)
	}
	if d.Text != "ok" {
		t.Errorf("Deliver() text = %q, want %q", d.Text, "ok")
	}

	want := map[string]any{
		"link":      "https://example.com/a",
		"title":     "A title",
		"source":    "TechCrunch AI",
		"timestamp": fixedNow.Format(time.RFC3339),
	}
	for k, v := range want {
		if gotBody[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, gotBody[k], v)
		}
	}
}

func TestDeliverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := testDispatcher().Deliver(context.Background(), srv.URL, "https://example.com/a", "t", "s")
	if !d.Failed {
		t.Fatal("Deliver() expected failure for 502")
	}
	if d.Text != domain.WebhookErrorPrefix+"502" {
		t.Errorf("Deliver() text = %q, want %q", d.Text, domain.WebhookErrorPrefix+"502")
	}
}

func TestDeliverTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	d := testDispatcher().Deliver(context.Background(), srv.URL, "https://example.com/a", "t", "s")
	if !d.Failed {
		t.Fatal("Deliver() expected failure for unreachable endpoint")
	}
	if !strings.HasPrefix(d.Text, domain.WebhookErrorPrefix) {
		t.Errorf("Deliver() text = %q, want sentinel prefix", d.Text)
	}
}

func TestExtractOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "object with output", body: `{"output":"done"}`, want: "done"},
		{name: "array with output", body: `[{"output":"first"},{"output":"second"}]`, want: "first"},
		{name: "object without output", body: `{"status":"ok"}`, want: `{"status":"ok"}`},
		{name: "array of non-objects", body: `[1,2,3]`, want: `[1,2,3]`},
		{name: "empty array", body: `[]`, want: `[]`},
		{name: "non-string output", body: `{"output":42}`, want: `{"output":42}`},
		{name: "plain text", body: `done`, want: `done`},
		{name: "empty body", body: ``, want: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractOutput([]byte(tt.body)); got != tt.want {
				t.Errorf("extractOutput(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestNotifyTeams(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
	}))
	defer srv.Close()

	evt := publishers.Event{
		Link:         "https://example.com/a",
		Title:        "A title",
		Source:       "Wired AI",
		ResponseText: "summarized",
		Timestamp:    fixedNow,
	}
	testDispatcher().NotifyTeams(context.Background(), srv.URL, evt, "a description")

	if gotBody["responseText"] != "summarized" {
		t.Errorf("payload responseText = %v", gotBody["responseText"])
	}
	if gotBody["description"] != "a description" {
		t.Errorf("payload description = %v", gotBody["description"])
	}
}

func TestNotifyTeamsSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Must not panic or propagate anything.
	testDispatcher().NotifyTeams(context.Background(), srv.URL, publishers.Event{Link: "x"}, "")
}

// recordingSink captures fan-out events.
type recordingSink struct {
	events []publishers.Event
	err    error
}

func (s *recordingSink) ID() string   { return "recording" }
func (s *recordingSink) Type() string { return "test" }
func (s *recordingSink) Publish(_ context.Context, evt publishers.Event) error {
	s.events = append(s.events, evt)
	return s.err
}

func TestFanout(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: context.DeadlineExceeded}
	after := &recordingSink{}

	d := New(nil, nil, []publishers.Publisher{ok, failing, after}, nil)
	d.Fanout(context.Background(), publishers.Event{Link: "https://example.com/a"})

	// A failing sink never blocks the remaining ones.
	for _, sink := range []*recordingSink{ok, failing, after} {
		if len(sink.events) != 1 {
			t.Errorf("sink %p received %d events, want 1", sink, len(sink.events))
		}
	}
}
