package provider

import (
	"context"
	"strings"

	"signet.dev/internal/ids"
)

// Mock accepts a single fixed code for every challenge. Used in tests that
// exercise the engine rather than the provider handshake.
type Mock struct {
	Code string
}

// NewMock creates a mock provider; code defaults to "000000".
func NewMock(code string) *Mock {
	if code == "" {
		code = "000000"
	}
	return &Mock{Code: code}
}

func (m *Mock) StartMagicAuth(ctx context.Context, email string) (StartResult, error) {
	return StartResult{PendingID: "mock_" + ids.New()}, nil
}

func (m *Mock) VerifyMagicAuth(ctx context.Context, code, pendingID, email, ip, userAgent string) (Identity, error) {
	if code != m.Code {
		return Identity{}, ErrInvalidCode
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return Identity{
		ProviderUserID: "mock|" + email,
		Email:          email,
		FirstName:      "Mock",
	}, nil
}

var _ Client = (*Mock)(nil)
