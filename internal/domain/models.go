package domain

import "time"

// Domain contains core models shared across the service.

// FeedItem is a single entry extracted from a feed document. Items are
// transient: they only become Articles once delivered successfully.
type FeedItem struct {
	Title       string
	Link        string
	PublishedAt *time.Time
}

// Article is a persisted delivery record. A row exists only for items
// whose primary webhook delivery succeeded, except for explicit retries,
// which update the row regardless of outcome.
type Article struct {
	ID           string
	Link         string
	Title        string
	ResponseText string
	ProcessedAt  time.Time
	PublishedAt  *time.Time
}

// WebhookErrorPrefix marks a stored response text as a failed delivery
// rather than a real webhook result. The literal is matched by storage
// queries and the dashboard retry affordance, so it must not change.
const WebhookErrorPrefix = "Webhook error: "

// Run triggers.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
	TriggerRetry  = "retry"
)

// RunRecord is one row of the run ledger. Inserted when a run starts,
// updated when it finishes.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Trigger        string
	Success        bool
	ProcessedCount int
	Message        string
	Error          string
}

// RunOutcome carries the completion fields written back to a RunRecord.
type RunOutcome struct {
	Success        bool
	ProcessedCount int
	Message        string
	Error          string
}

// RetryItem identifies an existing article whose delivery should be
// attempted again.
type RetryItem struct {
	ID    string `json:"id"`
	Link  string `json:"link"`
	Title string `json:"title"`
}

// SourceReport aggregates per-source counters for one run.
type SourceReport struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// RunReport is the result of one orchestration run.
type RunReport struct {
	Success      bool                    `json:"success"`
	Message      string                  `json:"message"`
	Processed    int                     `json:"processed"`
	TotalInFeed  int                     `json:"total_in_feed"`
	Sources      map[string]SourceReport `json:"sources,omitempty"`
	ResponseText string                  `json:"response_text,omitempty"`
}
