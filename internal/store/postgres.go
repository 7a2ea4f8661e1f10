// Package store persists articles and the run ledger in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/newswatch-hq/newswatch/internal/domain"
)

// Store wraps the article table and the run ledger.
type Store struct {
	db *sql.DB
}

// New builds a Store over an open database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Ensure creates the schema if it does not exist.
func (s *Store) Ensure(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
CREATE TABLE IF NOT EXISTS articles (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    link TEXT UNIQUE NOT NULL,
    title TEXT,
    response_text TEXT,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS articles_processed_at_idx ON articles (processed_at DESC);
CREATE INDEX IF NOT EXISTS articles_published_at_idx ON articles (published_at DESC);
CREATE TABLE IF NOT EXISTS runs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ,
    trigger_kind TEXT NOT NULL,
    success BOOLEAN NOT NULL DEFAULT false,
    processed_count INT NOT NULL DEFAULT 0,
    message TEXT,
    error TEXT
);
CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LinkSet loads every stored article link. The orchestrator snapshots this
// once per run and appends to it in memory as deliveries succeed.
func (s *Store) LinkSet(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT link FROM articles`)
	if err != nil {
		return nil, fmt.Errorf("load link set: %w", err)
	}
	defer rows.Close()

	links := make(map[string]struct{})
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links[link] = struct{}{}
	}
	return links, rows.Err()
}

// InsertArticle records a successful delivery. The unique index on link is
// the deduplication invariant; a conflicting insert is an error because the
// orchestrator must never reprocess a stored link.
func (s *Store) InsertArticle(ctx context.Context, a domain.Article) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (link, title, response_text, processed_at, published_at)
		 VALUES ($1, $2, $3, now(), $4)`,
		a.Link, nullString(a.Title), nullString(a.ResponseText), nullTime(a.PublishedAt))
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// UpdateArticleResponse overwrites the stored response for a retried
// article, failed or not, so the dashboard reflects the latest state.
func (s *Store) UpdateArticleResponse(ctx context.Context, id, responseText string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET response_text = $2, processed_at = now() WHERE id = $1`,
		id, responseText)
	if err != nil {
		return fmt.Errorf("update article response: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("article %s not found", id)
	}
	return nil
}

// ListRecent returns the newest articles by processing time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Article, error) {
	q := `SELECT id, link, title, response_text, processed_at, published_at
	      FROM articles ORDER BY processed_at DESC`
	if limit > 0 {
		q += ` LIMIT $1`
		return scanArticles(s.db.QueryContext(ctx, q, limit))
	}
	return scanArticles(s.db.QueryContext(ctx, q))
}

// ListFailed returns articles whose stored response marks a failed
// delivery. The prefix match is the compatibility contract for existing
// rows; see domain.WebhookErrorPrefix.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]domain.Article, error) {
	q := `SELECT id, link, title, response_text, processed_at, published_at
	      FROM articles WHERE response_text LIKE $1 ORDER BY processed_at DESC`
	pattern := domain.WebhookErrorPrefix + "%"
	if limit > 0 {
		q += ` LIMIT $2`
		return scanArticles(s.db.QueryContext(ctx, q, pattern, limit))
	}
	return scanArticles(s.db.QueryContext(ctx, q, pattern))
}

// LogRunStart inserts a ledger row for a starting run and returns its id.
// Callers treat errors as best-effort: a ledger failure never aborts a run.
func (s *Store) LogRunStart(ctx context.Context, trigger string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO runs (trigger_kind) VALUES ($1) RETURNING id`, trigger).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("log run start: %w", err)
	}
	return id, nil
}

// LogRunFinish completes a ledger row. An empty id is a no-op so callers
// can thread through a failed LogRunStart without branching.
func (s *Store) LogRunFinish(ctx context.Context, id string, outcome domain.RunOutcome) error {
	if id == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = now(), success = $2, processed_count = $3, message = $4, error = $5
		 WHERE id = $1`,
		id, outcome.Success, outcome.ProcessedCount, nullString(outcome.Message), nullString(outcome.Error))
	if err != nil {
		return fmt.Errorf("log run finish: %w", err)
	}
	return nil
}

// ListRuns returns the newest ledger rows.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	q := `SELECT id, started_at, finished_at, trigger_kind, success, processed_count, message, error
	      FROM runs ORDER BY started_at DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, q+` LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			r        domain.RunRecord
			finished sql.NullTime
			message  sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Trigger, &r.Success, &r.ProcessedCount, &message, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Message = message.String
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanArticles(rows *sql.Rows, err error) ([]domain.Article, error) {
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		var (
			a         domain.Article
			title     sql.NullString
			response  sql.NullString
			published sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Link, &title, &response, &a.ProcessedAt, &published); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Title = title.String
		a.ResponseText = response.String
		if published.Valid {
			t := published.Time
			a.PublishedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
