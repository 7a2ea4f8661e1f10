// Package ratelimit tracks failed authentication attempts per client with
// an expiring lockout, persisted in a local bbolt file so restarts do not
// reset an active lockout.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var attemptsBucket = []byte("auth_attempts")

// Defaults applied when the zero value is passed to New.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
	DefaultLockout     = 15 * time.Minute
)

// attemptState is the stored per-client counter.
type attemptState struct {
	Count       int   `json:"count"`
	WindowStart int64 `json:"window_start"`
	LockedUntil int64 `json:"locked_until"`
}

// Limiter is an attempt counter with expiring lockout.
type Limiter struct {
	db          *bolt.DB
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// Options tunes a Limiter. Zero fields fall back to the defaults.
type Options struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// Open opens (or creates) the attempt store at path.
func Open(path string, opts Options) (*Limiter, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open attempt store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(attemptsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create attempts bucket: %w", err)
	}
	return New(db, opts), nil
}

// New builds a Limiter over an open bbolt handle.
func New(db *bolt.DB, opts Options) *Limiter {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Lockout <= 0 {
		opts.Lockout = DefaultLockout
	}
	return &Limiter{
		db:          db,
		maxAttempts: opts.MaxAttempts,
		window:      opts.Window,
		lockout:     opts.Lockout,
		now:         time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Close closes the underlying store.
func (l *Limiter) Close() error { return l.db.Close() }

// Allowed reports whether the client may attempt authentication now.
func (l *Limiter) Allowed(clientID string) (bool, error) {
	var st attemptState
	found := false
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(attemptsBucket).Get([]byte(clientID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &st)
	})
	if err != nil {
		return false, fmt.Errorf("read attempt state: %w", err)
	}
	if !found {
		return true, nil
	}
	return l.now().UnixMilli() >= st.LockedUntil, nil
}

// RecordFailure counts a failed attempt and starts a lockout when the
// client exhausts its attempts inside the window.
func (l *Limiter) RecordFailure(clientID string) error {
	now := l.now()
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(attemptsBucket)

		var st attemptState
		if raw := b.Get([]byte(clientID)); raw != nil {
			if err := json.Unmarshal(raw, &st); err != nil {
				st = attemptState{}
			}
		}

		if st.WindowStart == 0 || now.Sub(time.UnixMilli(st.WindowStart)) > l.window {
			st = attemptState{WindowStart: now.UnixMilli()}
		}
		st.Count++
		if st.Count >= l.maxAttempts {
			st.LockedUntil = now.Add(l.lockout).UnixMilli()
		}

		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put([]byte(clientID), raw)
	})
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return nil
}

// Reset clears the client's counter after a successful authentication.
func (l *Limiter) Reset(clientID string) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(attemptsBucket).Delete([]byte(clientID))
	})
	if err != nil {
		return fmt.Errorf("reset attempt state: %w", err)
	}
	return nil
}
