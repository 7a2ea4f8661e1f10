// Package dispatch delivers qualified feed items to the primary automation
// webhook and forwards successful deliveries to the secondary (Teams)
// notification and any configured fan-out sinks.
package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/newswatch-hq/newswatch/internal/domain"
	"github.com/newswatch-hq/newswatch/internal/logger"
	"github.com/newswatch-hq/newswatch/pkg/httpclient"
	"github.com/newswatch-hq/newswatch/pkg/publishers"
)

// Per-call timeouts. The primary webhook runs an automation pipeline and is
// allowed more time than a notification post.
const (
	WebhookTimeout = 35 * time.Second
	TeamsTimeout   = 15 * time.Second
)

// Delivery is the structured outcome of one primary webhook call. Failed
// deliveries still carry the sentinel-prefixed text for rows that persist
// it (retries), but in-process callers branch on Failed, never on the text.
type Delivery struct {
	Text   string
	Failed bool
}

// webhookPayload is the primary webhook request body.
type webhookPayload struct {
	Link      string `json:"link"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// teamsPayload is the secondary notification body. It extends the fan-out
// event with an optional scraped description.
type teamsPayload struct {
	publishers.Event
	Description string `json:"description,omitempty"`
}

// Dispatcher performs outbound deliveries.
type Dispatcher struct {
	webhook httpclient.Client
	teams   httpclient.Client
	sinks   []publishers.Publisher
	log     logger.Logger
	now     func() time.Time
}

// New builds a Dispatcher. Nil clients get defaults tuned with the
// respective timeouts; sinks may be empty.
func New(webhook, teams httpclient.Client, sinks []publishers.Publisher, log logger.Logger) *Dispatcher {
	if webhook == nil {
		webhook = httpclient.NewRestyClient(WebhookTimeout)
	}
	if teams == nil {
		teams = httpclient.NewRestyClient(TeamsTimeout)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Dispatcher{
		webhook: webhook,
		teams:   teams,
		sinks:   sinks,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Deliver posts one item to the primary webhook at endpoint and interprets
// the response. A non-2xx status or transport failure yields a failed
// Delivery carrying the sentinel-prefixed text.
func (d *Dispatcher) Deliver(ctx context.Context, endpoint, link, title, source string) Delivery {
	payload := webhookPayload{
		Link:      link,
		Title:     title,
		Source:    source,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	}

	resp, err := d.webhook.PostJSON(ctx, endpoint, nil, payload)
	if err != nil {
		d.log.WarnObj("webhook delivery failed", "webhook_error", map[string]any{
			"link":  link,
			"error": err.Error(),
		})
		return Delivery{Text: domain.WebhookErrorPrefix + err.Error(), Failed: true}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		d.log.WarnObj("webhook returned error status", "webhook_error", map[string]any{
			"link":   link,
			"status": resp.StatusCode(),
		})
		return Delivery{Text: domain.WebhookErrorPrefix + strconv.Itoa(resp.StatusCode()), Failed: true}
	}

	return Delivery{Text: extractOutput(resp.Body())}
}

// extractOutput interprets a successful webhook response body. If the body
// is a JSON array whose first element has an "output" field, or a JSON
// object with an "output" field, that field's string value wins; otherwise
// the raw body text is the result.
func extractOutput(body []byte) string {
	raw := string(body)

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return raw
	}

	switch v := decoded.(type) {
	case []any:
		if len(v) > 0 {
			if obj, ok := v[0].(map[string]any); ok {
				if out, ok := obj["output"].(string); ok {
					return out
				}
			}
		}
	case map[string]any:
		if out, ok := v["output"].(string); ok {
			return out
		}
	}
	return raw
}

// NotifyTeams posts the enriched notification to the Teams endpoint.
// Failures are logged and swallowed; the primary result is already final.
func (d *Dispatcher) NotifyTeams(ctx context.Context, endpoint string, evt publishers.Event, description string) {
	payload := teamsPayload{Event: evt, Description: description}

	resp, err := d.teams.PostJSON(ctx, endpoint, nil, payload)
	if err != nil {
		d.log.WarnObj("teams notification failed", "teams_error", map[string]any{
			"link":  evt.Link,
			"error": err.Error(),
		})
		return
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		d.log.WarnObj("teams notification returned error status", "teams_error", map[string]any{
			"link":   evt.Link,
			"status": resp.StatusCode(),
		})
		return
	}
	d.log.DebugObj("teams notification delivered", "teams_delivery", map[string]any{
		"link": evt.Link,
	})
}

// Fanout offers the event to every configured sink, best-effort.
func (d *Dispatcher) Fanout(ctx context.Context, evt publishers.Event) {
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, evt); err != nil {
			d.log.WarnObj("fan-out sink failed", "fanout_error", map[string]any{
				"publisher_id": sink.ID(),
				"link":         evt.Link,
				"error":        err.Error(),
			})
		}
	}
}
