package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "unit-test-secret"

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func makeToken(t *testing.T, secret, role string, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"role":%q,"exp":%d}`, role, exp.UnixMilli())))
	return Sign(secret, header, payload)
}

func testVerifier() *Verifier {
	return NewVerifier(testSecret).WithClock(func() time.Time { return testNow })
}

func TestTierCronDetection(t *testing.T) {
	// Service-role tokens are classified by claim alone: an expired or
	// differently-signed system token still lands in the cron tier.
	token := makeToken(t, "some-other-secret", "service_role", testNow.Add(-time.Hour))

	tier, err := testVerifier().Tier(token)
	if err != nil {
		t.Fatalf("Tier() error: %v", err)
	}
	if tier != TierCron {
		t.Errorf("Tier() = %v, want TierCron", tier)
	}
}

func TestTierInteractive(t *testing.T) {
	token := makeToken(t, testSecret, "authenticated", testNow.Add(time.Hour))

	tier, err := testVerifier().Tier(token)
	if err != nil {
		t.Fatalf("Tier() error: %v", err)
	}
	if tier != TierInteractive {
		t.Errorf("Tier() = %v, want TierInteractive", tier)
	}
}

func TestTierRejections(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "two segments",
			token:   "abc.def",
			wantErr: ErrMalformed,
		},
		{
			name:    "payload not base64",
			token:   "abc.!!!.ghi",
			wantErr: ErrMalformed,
		},
		{
			name:    "payload not json",
			token:   "abc." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".ghi",
			wantErr: ErrMalformed,
		},
		{
			name:    "wrong secret",
			token:   makeToken(t, "wrong-secret", "authenticated", testNow.Add(time.Hour)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "expired",
			token:   makeToken(t, testSecret, "authenticated", testNow.Add(-time.Minute)),
			wantErr: ErrExpired,
		},
		{
			name: "missing exp",
			token: makeToken(t, testSecret, "authenticated", time.UnixMilli(0)),

			wantErr: ErrExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := testVerifier().Tier(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("Tier() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTierExpBoundary(t *testing.T) {
	// Exactly-now is still valid; one millisecond earlier is expired.
	token := makeToken(t, testSecret, "authenticated", testNow)
	if _, err := testVerifier().Tier(token); err != nil {
		t.Errorf("Tier() at exp boundary: %v", err)
	}

	token = makeToken(t, testSecret, "authenticated", testNow.Add(-time.Millisecond))
	if _, err := testVerifier().Tier(token); !errors.Is(err, ErrExpired) {
		t.Errorf("Tier() past exp = %v, want ErrExpired", err)
	}
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer token", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "empty header", header: "", wantErr: ErrNoToken},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantErr: ErrMalformed},
		{name: "bearer with no token", header: "Bearer   ", wantErr: ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromHeader(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("FromHeader() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromHeader() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FromHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}
