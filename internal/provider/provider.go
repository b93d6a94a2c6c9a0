// Package provider abstracts the external magic-code identity provider.
//
// The flow mirrors passwordless email login: a challenge is opened for an
// email address, the provider mails a one-time code, and the code is
// exchanged for a verified identity. One client variant talks to the real
// provider over HTTP; the others are deterministic stand-ins for tests,
// local development, and failure injection.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCode is returned when the provider rejects the code as
	// wrong or expired. Callers surface it as a generic validation error
	// so the two cases can not be told apart by the end user.
	ErrInvalidCode = errors.New("provider: invalid or expired code")

	// ErrUnavailable is returned when the provider can not be reached or
	// answers with a non-auth failure.
	ErrUnavailable = errors.New("provider: unavailable")
)

// StartResult is the provider's handle for an opened challenge.
type StartResult struct {
	PendingID string
	// ExpiresAt is zero when the provider does not report an expiry;
	// the engine then applies its own challenge TTL.
	ExpiresAt time.Time
}

// Identity is the verified subject returned by a successful code exchange.
type Identity struct {
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
}

// Client is the two-call capability every provider variant implements.
type Client interface {
	StartMagicAuth(ctx context.Context, email string) (StartResult, error)
	VerifyMagicAuth(ctx context.Context, code, pendingID, email, ip, userAgent string) (Identity, error)
}
