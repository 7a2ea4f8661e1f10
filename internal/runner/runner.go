// Package runner sequences one monitoring run: quiet-hours gate, link
// snapshot, per-source fetch/parse/filter, per-item delivery and
// persistence, and run ledger bracketing.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/newswatch-hq/newswatch/internal/config"
	"github.com/newswatch-hq/newswatch/internal/dispatch"
	"github.com/newswatch-hq/newswatch/internal/domain"
	"github.com/newswatch-hq/newswatch/internal/feed"
	"github.com/newswatch-hq/newswatch/internal/logger"
	"github.com/newswatch-hq/newswatch/internal/scrape"
	"github.com/newswatch-hq/newswatch/pkg/publishers"
)

// RecencyWindow is the trailing window an item's publish date must fall
// within to qualify. Items without a parseable date always qualify.
const RecencyWindow = 12 * time.Hour

// Operating hours, in the fixed civil timezone below. Outside them a run
// short-circuits before any fetch. This is a business rule, not a
// technical constraint.
const (
	operatingHoursStart = 7
	operatingHoursEnd   = 20
	operatingTimezone   = "Europe/Paris"
)

// Request describes one orchestration invocation.
type Request struct {
	WebhookMode  string
	Sources      []string
	RetryItem    *domain.RetryItem
	TeamsEnabled bool
	TeamsMode    string
	Trigger      string
}

// Store is the persistence surface the runner needs.
type Store interface {
	LinkSet(ctx context.Context) (map[string]struct{}, error)
	InsertArticle(ctx context.Context, a domain.Article) error
	UpdateArticleResponse(ctx context.Context, id, responseText string) error
	LogRunStart(ctx context.Context, trigger string) (string, error)
	LogRunFinish(ctx context.Context, id string, outcome domain.RunOutcome) error
}

// Fetcher downloads one feed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Dispatcher performs the outbound deliveries for one item.
type Dispatcher interface {
	Deliver(ctx context.Context, endpoint, link, title, source string) dispatch.Delivery
	NotifyTeams(ctx context.Context, endpoint string, evt publishers.Event, description string)
	Fanout(ctx context.Context, evt publishers.Event)
}

// Describer optionally enriches Teams notifications with page metadata.
type Describer interface {
	Describe(ctx context.Context, url string) (scrape.PageMeta, error)
}

// Runner orchestrates monitoring runs. Sources and items are processed
// strictly in sequence: the in-run link set is mutated as deliveries
// succeed, which is what prevents duplicate inserts across sources.
type Runner struct {
	cfg        config.Config
	sources    *feed.Sources
	store      Store
	fetcher    Fetcher
	dispatcher Dispatcher
	scraper    Describer
	log        logger.Logger
	now        func() time.Time
	loc        *time.Location
}

// New builds a Runner. The scraper may be nil; Teams notifications then go
// out without a description.
func New(cfg config.Config, sources *feed.Sources, st Store, f Fetcher, d Dispatcher, sc Describer, log logger.Logger) (*Runner, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	loc, err := time.LoadLocation(operatingTimezone)
	if err != nil {
		return nil, fmt.Errorf("load operating timezone: %w", err)
	}
	return &Runner{
		cfg:        cfg,
		sources:    sources,
		store:      st,
		fetcher:    f,
		dispatcher: d,
		scraper:    sc,
		log:        log,
		now:        time.Now,
		loc:        loc,
	}, nil
}

// WithClock overrides the clock, for tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run executes one invocation. Store write failures abort the run and are
// returned; everything else is isolated per source or per item.
func (r *Runner) Run(ctx context.Context, req Request) (domain.RunReport, error) {
	runID := r.logStart(ctx, req.Trigger)

	if req.RetryItem != nil {
		return r.retry(ctx, req, runID)
	}

	if !r.withinOperatingHours() {
		report := domain.RunReport{Success: true, Message: "Outside operating hours"}
		r.logFinish(ctx, runID, domain.RunOutcome{Success: true, Message: report.Message})
		return report, nil
	}

	endpoint, err := r.cfg.Webhook(req.WebhookMode)
	if err != nil {
		r.logFinish(ctx, runID, domain.RunOutcome{Error: err.Error()})
		return domain.RunReport{}, err
	}

	var teamsEndpoint string
	if req.TeamsEnabled {
		teamsEndpoint, err = r.cfg.TeamsWebhook(req.TeamsMode)
		if err != nil {
			r.logFinish(ctx, runID, domain.RunOutcome{Error: err.Error()})
			return domain.RunReport{}, err
		}
	}

	links, err := r.store.LinkSet(ctx)
	if err != nil {
		r.logFinish(ctx, runID, domain.RunOutcome{Error: err.Error()})
		return domain.RunReport{}, err
	}

	report := domain.RunReport{Success: true, Sources: make(map[string]domain.SourceReport)}
	for _, key := range r.sources.Select(req.Sources) {
		src, ok := r.sources.ByKey(key)
		if !ok {
			continue
		}

		processed, total, err := r.processSource(ctx, src, endpoint, teamsEndpoint, links)
		if err != nil {
			// Store write failures are the only errors processSource
			// propagates; they abort the run.
			r.logFinish(ctx, runID, domain.RunOutcome{
				ProcessedCount: report.Processed,
				Error:          err.Error(),
			})
			return domain.RunReport{}, err
		}

		report.Sources[key] = domain.SourceReport{Processed: processed, Total: total}
		report.Processed += processed
		report.TotalInFeed += total
	}

	report.Message = fmt.Sprintf("Processed %d new item(s) across %d source(s)", report.Processed, len(report.Sources))
	r.logFinish(ctx, runID, domain.RunOutcome{
		Success:        true,
		ProcessedCount: report.Processed,
		Message:        report.Message,
	})
	return report, nil
}

// processSource handles one feed source. Fetch and parse failures are
// isolated: the source reports zero items and the run continues.
func (r *Runner) processSource(ctx context.Context, src feed.Source, endpoint, teamsEndpoint string, links map[string]struct{}) (processed, total int, err error) {
	body, err := r.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		r.log.WarnObj("source fetch failed", "source_error", map[string]any{
			"source": src.Name,
			"error":  err.Error(),
		})
		return 0, 0, nil
	}

	items := feed.Parse(body)
	total = len(items)

	for _, item := range items {
		if _, seen := links[item.Link]; seen {
			continue
		}
		if !r.recent(item.PublishedAt) {
			continue
		}

		delivery := r.dispatcher.Deliver(ctx, endpoint, item.Link, item.Title, src.Name)
		if delivery.Failed {
			// No row for a failed fresh delivery: the item stays unknown
			// to the link set and is retried on the next run.
			continue
		}

		if err := r.store.InsertArticle(ctx, domain.Article{
			Link:         item.Link,
			Title:        item.Title,
			ResponseText: delivery.Text,
			PublishedAt:  item.PublishedAt,
		}); err != nil {
			return processed, total, err
		}
		links[item.Link] = struct{}{}
		processed++

		evt := publishers.Event{
			Link:         item.Link,
			Title:        item.Title,
			Source:       src.Name,
			ResponseText: delivery.Text,
			Timestamp:    r.now().UTC(),
		}
		if teamsEndpoint != "" {
			r.dispatcher.NotifyTeams(ctx, teamsEndpoint, evt, r.describe(ctx, item.Link))
		}
		r.dispatcher.Fanout(ctx, evt)
	}
	return processed, total, nil
}

// retry re-delivers one existing article and stores the result text
// whatever the outcome, so the dashboard reflects the latest state.
func (r *Runner) retry(ctx context.Context, req Request, runID string) (domain.RunReport, error) {
	item := req.RetryItem

	endpoint, err := r.cfg.Webhook(req.WebhookMode)
	if err != nil {
		r.logFinish(ctx, runID, domain.RunOutcome{Error: err.Error()})
		return domain.RunReport{}, err
	}

	delivery := r.dispatcher.Deliver(ctx, endpoint, item.Link, item.Title, "retry")

	if err := r.store.UpdateArticleResponse(ctx, item.ID, delivery.Text); err != nil {
		r.logFinish(ctx, runID, domain.RunOutcome{Error: err.Error()})
		return domain.RunReport{}, err
	}

	report := domain.RunReport{
		Success:      !delivery.Failed,
		ResponseText: delivery.Text,
	}
	if delivery.Failed {
		report.Message = "Retry delivery failed"
	} else {
		report.Message = "Retry successful"
		report.Processed = 1
	}

	r.logFinish(ctx, runID, domain.RunOutcome{
		Success:        report.Success,
		ProcessedCount: report.Processed,
		Message:        report.Message,
	})
	return report, nil
}

// describe fetches page metadata for the Teams notification, best-effort.
func (r *Runner) describe(ctx context.Context, url string) string {
	if r.scraper == nil {
		return ""
	}
	meta, err := r.scraper.Describe(ctx, url)
	if err != nil {
		r.log.DebugObj("page metadata scrape failed", "metadata_error", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return ""
	}
	return meta.Description
}

// recent reports whether the publish date falls inside the trailing
// recency window. Missing dates count as recent; the boundary is
// inclusive.
func (r *Runner) recent(publishedAt *time.Time) bool {
	if publishedAt == nil {
		return true
	}
	cutoff := r.now().Add(-RecencyWindow)
	return !publishedAt.Before(cutoff)
}

func (r *Runner) withinOperatingHours() bool {
	h := r.now().In(r.loc).Hour()
	return h >= operatingHoursStart && h < operatingHoursEnd
}

// logStart records the run in the ledger, best-effort. An empty id
// disables the matching finish write.
func (r *Runner) logStart(ctx context.Context, trigger string) string {
	id, err := r.store.LogRunStart(ctx, trigger)
	if err != nil {
		r.log.WarnObj("run ledger start failed", "ledger_error", map[string]any{
			"trigger": trigger,
			"error":   err.Error(),
		})
		return ""
	}
	return id
}

// logFinish completes the ledger row, best-effort.
func (r *Runner) logFinish(ctx context.Context, id string, outcome domain.RunOutcome) {
	if err := r.store.LogRunFinish(ctx, id, outcome); err != nil {
		r.log.WarnObj("run ledger finish failed", "ledger_error", map[string]any{
			"run_id": id,
			"error":  err.Error(),
		})
	}
}
