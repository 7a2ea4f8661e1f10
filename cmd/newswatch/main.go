package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/newswatch-hq/newswatch/internal/auth"
	"github.com/newswatch-hq/newswatch/internal/config"
	"github.com/newswatch-hq/newswatch/internal/dispatch"
	"github.com/newswatch-hq/newswatch/internal/feed"
	"github.com/newswatch-hq/newswatch/internal/logger"
	"github.com/newswatch-hq/newswatch/internal/ratelimit"
	"github.com/newswatch-hq/newswatch/internal/runner"
	"github.com/newswatch-hq/newswatch/internal/scrape"
	"github.com/newswatch-hq/newswatch/internal/server"
	"github.com/newswatch-hq/newswatch/internal/store"
	"github.com/newswatch-hq/newswatch/pkg/httpclient"
	"github.com/newswatch-hq/newswatch/pkg/publishers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "newswatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	if err := st.Ensure(ctx); err != nil {
		return err
	}

	limiter, err := ratelimit.Open(cfg.AttemptStorePath, ratelimit.Options{})
	if err != nil {
		return err
	}
	defer limiter.Close()

	sources := feed.DefaultSources()
	if cfg.SourcesFile != "" {
		sources, err = feed.LoadSources(cfg.SourcesFile)
		if err != nil {
			return err
		}
	}

	var sinks []publishers.Publisher
	if cfg.PublishersFile != "" {
		reg, err := publishers.LoadRegistry(cfg.PublishersFile)
		if err != nil {
			return err
		}
		sinks, err = publishers.BuildAll(ctx, publishers.DefaultRegistry(), reg.Enabled(), log)
		if err != nil {
			return err
		}
	}

	dispatcher := dispatch.New(
		httpclient.NewRestyClient(dispatch.WebhookTimeout),
		httpclient.NewRestyClient(dispatch.TeamsTimeout),
		sinks,
		log,
	)
	scraper := scrape.NewScraper(nil, log)
	fetcher := feed.NewFetcher(httpclient.NewRestyClient(feed.FetchTimeout))

	run, err := runner.New(cfg, sources, st, fetcher, dispatcher, scraper, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(run, auth.NewVerifier(cfg.TokenSecret), limiter, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoObj("listening", "startup", map[string]any{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
