// Package server exposes the invocation API. Authorization is two-tier:
// system (cron) tokens get an immediate accepted response with the run
// detached in the background, interactive tokens run synchronously.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/newswatch-hq/newswatch/internal/auth"
	"github.com/newswatch-hq/newswatch/internal/domain"
	"github.com/newswatch-hq/newswatch/internal/logger"
	"github.com/newswatch-hq/newswatch/internal/runner"
)

// runRequest is the invocation body. Every field is optional.
type runRequest struct {
	WebhookMode  string            `json:"webhookMode"`
	Sources      []string          `json:"sources"`
	RetryItem    *domain.RetryItem `json:"retryItem"`
	TeamsEnabled bool              `json:"teamsEnabled"`
	TeamsMode    string            `json:"teamsMode"`
}

// errorResponse is the body for rejected invocations.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// acceptedResponse acknowledges a detached cron run before it finishes.
type acceptedResponse struct {
	Success  bool `json:"success"`
	Accepted bool `json:"accepted"`
}

// Runner executes one orchestration run.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (domain.RunReport, error)
}

// Limiter guards the interactive tier with an attempt counter.
type Limiter interface {
	Allowed(clientID string) (bool, error)
	RecordFailure(clientID string) error
	Reset(clientID string) error
}

// Server routes and authorizes invocation requests.
type Server struct {
	runner   Runner
	verifier *auth.Verifier
	limiter  Limiter
	log      logger.Logger
}

// New builds a Server. The limiter may be nil, which disables lockouts.
func New(run Runner, verifier *auth.Verifier, limiter Limiter, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Server{runner: run, verifier: verifier, limiter: limiter, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/check-rss":
		s.handleCheckRSS(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCheckRSS(w http.ResponseWriter, r *http.Request) {
	clientID := clientIP(r)

	if !s.allowed(clientID) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "Too many failed attempts, try again later"})
		return
	}

	tier, ok := s.authorize(w, r, clientID)
	if !ok {
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
		return
	}

	runReq := runner.Request{
		WebhookMode:  req.WebhookMode,
		Sources:      req.Sources,
		RetryItem:    req.RetryItem,
		TeamsEnabled: req.TeamsEnabled,
		TeamsMode:    req.TeamsMode,
		Trigger:      domain.TriggerManual,
	}
	if req.RetryItem != nil {
		runReq.Trigger = domain.TriggerRetry
	}

	if tier == auth.TierCron {
		// Cron runs always notify Teams and detach from the request: the
		// scheduler gets its acknowledgement before processing starts.
		runReq.Trigger = domain.TriggerCron
		runReq.TeamsEnabled = true

		writeJSON(w, http.StatusAccepted, acceptedResponse{Success: true, Accepted: true})

		go func() {
			if _, err := s.runner.Run(context.Background(), runReq); err != nil {
				// The runner already recorded the failure in the ledger.
				s.log.ErrorObj("background run failed", "run_error", map[string]any{
					"error": err.Error(),
				})
			}
		}()
		return
	}

	report, err := s.runner.Run(r.Context(), runReq)
	if err != nil {
		s.log.ErrorObj("run failed", "run_error", map[string]any{
			"client": clientID,
			"error":  err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// authorize enforces the bearer-token gate and feeds the attempt counter.
// It writes the rejection response itself and reports success via ok.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, clientID string) (auth.Tier, bool) {
	token, err := auth.FromHeader(r.Header.Get("Authorization"))
	if err != nil {
		s.recordFailure(clientID)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Missing or malformed authorization"})
		return 0, false
	}

	tier, err := s.verifier.Tier(token)
	if err != nil {
		s.recordFailure(clientID)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid or expired token"})
		return 0, false
	}

	if tier == auth.TierInteractive {
		s.resetFailures(clientID)
	}
	return tier, true
}

// allowed checks the lockout state. Counter read failures fail open: a
// broken attempt store must not take the API down.
func (s *Server) allowed(clientID string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allowed(clientID)
	if err != nil {
		s.log.WarnObj("attempt store read failed", "ratelimit_error", map[string]any{
			"client": clientID,
			"error":  err.Error(),
		})
		return true
	}
	return ok
}

func (s *Server) recordFailure(clientID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(clientID); err != nil {
		s.log.WarnObj("attempt store write failed", "ratelimit_error", map[string]any{
			"client": clientID,
			"error":  err.Error(),
		})
	}
}

func (s *Server) resetFailures(clientID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(clientID); err != nil {
		s.log.WarnObj("attempt store reset failed", "ratelimit_error", map[string]any{
			"client": clientID,
			"error":  err.Error(),
		})
	}
}

// decodeRequest parses the invocation body. An empty body means defaults.
func decodeRequest(r *http.Request) (runRequest, error) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return runRequest{}, err
	}
	return req, nil
}

// clientIP identifies the caller for the attempt counter, preferring the
// first forwarded address when the service sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
