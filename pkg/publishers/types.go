// Package publishers fans delivered articles out to configured sinks:
// generic HTTP endpoints and cloud queues. Fan-out is best-effort; sink
// failures never affect the primary delivery result.
package publishers

import (
	"context"
	"time"
)

// Event is the notification sent to every sink after an article's primary
// webhook delivery succeeds.
type Event struct {
	Link         string    `json:"link"`
	Title        string    `json:"title"`
	Source       string    `json:"source"`
	ResponseText string    `json:"responseText"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers events to one configured sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Logger is the minimal structured logging surface publishers use. The
// service's logger satisfies it.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) DebugObj(string, string, map[string]any) {}
func (nopLogger) WarnObj(string, string, map[string]any)  {}
func (nopLogger) ErrorObj(string, string, map[string]any) {}

// ensureLogger returns a usable logger even when callers pass nil.
func ensureLogger(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
