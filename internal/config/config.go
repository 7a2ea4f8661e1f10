package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Webhook modes accepted by the invocation API.
const (
	ModeProduction = "production"
	ModeTest       = "test"
)

// ErrMissing marks a configuration value that is required by the code path
// being executed but absent from the environment.
var ErrMissing = errors.New("missing configuration")

// Config holds the environment-sourced settings. Values are read once at
// startup; per-branch validation happens at use time so a missing test
// endpoint only fails test-mode requests.
type Config struct {
	ListenAddr string
	LogLevel   string

	DatabaseURL string
	TokenSecret string

	WebhookURL     string
	WebhookTestURL string

	TeamsWebhookURL     string
	TeamsWebhookTestURL string

	SourcesFile      string
	PublishersFile   string
	AttemptStorePath string
}

// Load reads the configuration from the environment.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ATTEMPT_STORE_PATH", "newswatch-attempts.db")

	return Config{
		ListenAddr: v.GetString("LISTEN_ADDR"),
		LogLevel:   v.GetString("LOG_LEVEL"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		TokenSecret: v.GetString("TOKEN_SECRET"),

		WebhookURL:     v.GetString("WEBHOOK_URL"),
		WebhookTestURL: v.GetString("WEBHOOK_URL_TEST"),

		TeamsWebhookURL:     v.GetString("TEAMS_WEBHOOK_URL"),
		TeamsWebhookTestURL: v.GetString("TEAMS_WEBHOOK_URL_TEST"),

		SourcesFile:      v.GetString("SOURCES_FILE"),
		PublishersFile:   v.GetString("PUBLISHERS_FILE"),
		AttemptStorePath: v.GetString("ATTEMPT_STORE_PATH"),
	}
}

// Webhook resolves the primary webhook endpoint for the given mode.
func (c Config) Webhook(mode string) (string, error) {
	return c.resolve(mode, c.WebhookURL, c.WebhookTestURL, "WEBHOOK_URL")
}

// TeamsWebhook resolves the secondary notification endpoint for the given mode.
func (c Config) TeamsWebhook(mode string) (string, error) {
	return c.resolve(mode, c.TeamsWebhookURL, c.TeamsWebhookTestURL, "TEAMS_WEBHOOK_URL")
}

func (c Config) resolve(mode, prod, test, name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeProduction:
		if prod == "" {
			return "", fmt.Errorf("%w: %s", ErrMissing, name)
		}
		return prod, nil
	case ModeTest:
		if test == "" {
			return "", fmt.Errorf("%w: %s_TEST", ErrMissing, name)
		}
		return test, nil
	default:
		return "", fmt.Errorf("unknown webhook mode %q", mode)
	}
}

// Validate checks the settings every run needs regardless of branch.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL", ErrMissing)
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("%w: TOKEN_SECRET", ErrMissing)
	}
	return nil
}
