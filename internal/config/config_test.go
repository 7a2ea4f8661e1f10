package config

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/newswatch")
	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/prod")
	t.Setenv("WEBHOOK_URL_TEST", "https://hooks.example.com/test")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.DatabaseURL != "postgres://localhost/newswatch" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.TokenSecret != "s3cret" {
		t.Errorf("TokenSecret = %q", cfg.TokenSecret)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr default = %q", cfg.ListenAddr)
	}
	if cfg.AttemptStorePath == "" {
		t.Error("AttemptStorePath default missing")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestWebhookModeResolution(t *testing.T) {
	cfg := Config{
		WebhookURL:     "https://hooks.example.com/prod",
		WebhookTestURL: "https://hooks.example.com/test",
	}

	tests := []struct {
		mode string
		want string
	}{
		{mode: "", want: cfg.WebhookURL},
		{mode: "production", want: cfg.WebhookURL},
		{mode: "Production", want: cfg.WebhookURL},
		{mode: " test ", want: cfg.WebhookTestURL},
	}
	for _, tt := range tests {
		got, err := cfg.Webhook(tt.mode)
		if err != nil {
			t.Errorf("Webhook(%q): %v", tt.mode, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Webhook(%q) = %q, want %q", tt.mode, got, tt.want)
		}
	}

	if _, err := cfg.Webhook("staging"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestWebhookMissingPerBranch(t *testing.T) {
	// Only the production endpoint is configured: test mode must fail
	// without affecting production resolution.
	cfg := Config{WebhookURL: "https://hooks.example.com/prod"}

	if _, err := cfg.Webhook(""); err != nil {
		t.Errorf("production branch: %v", err)
	}

	_, err := cfg.Webhook("test")
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("test branch error = %v, want ErrMissing", err)
	}
	if !strings.Contains(err.Error(), "WEBHOOK_URL_TEST") {
		t.Errorf("error = %q, want the variable name", err)
	}

	empty := Config{}
	if _, err := empty.Webhook(""); !errors.Is(err, ErrMissing) {
		t.Errorf("empty config error = %v, want ErrMissing", err)
	}
}

func TestTeamsWebhookResolution(t *testing.T) {
	cfg := Config{TeamsWebhookTestURL: "https://teams.example.com/test"}

	got, err := cfg.TeamsWebhook("test")
	if err != nil || got != cfg.TeamsWebhookTestURL {
		t.Errorf("TeamsWebhook(test) = %q, %v", got, err)
	}

	_, err = cfg.TeamsWebhook("")
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("error = %v, want ErrMissing", err)
	}
	if !strings.Contains(err.Error(), "TEAMS_WEBHOOK_URL") {
		t.Errorf("error = %q, want the variable name", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "no database", cfg: Config{TokenSecret: "s"}, wantErr: "DATABASE_URL"},
		{name: "no secret", cfg: Config{DatabaseURL: "postgres://x"}, wantErr: "TOKEN_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, ErrMissing) {
				t.Fatalf("error = %v, want ErrMissing", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want %q named", err, tt.wantErr)
			}
		})
	}
}
