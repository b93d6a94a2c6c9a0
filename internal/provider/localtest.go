package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LocalTest is a fully deterministic provider for development and smoke
// runs: no email is sent, and the expected code can be computed from the
// address alone.
type LocalTest struct{}

// NewLocalTest creates the deterministic local provider.
func NewLocalTest() *LocalTest { return &LocalTest{} }

// LocalCode returns the code the local-test provider accepts for email.
func LocalCode(email string) string {
	sum := sha256.Sum256([]byte("signet-localtest:" + strings.ToLower(strings.TrimSpace(email))))
	var digits [6]byte
	for i := range digits {
		digits[i] = '0' + sum[i]%10
	}
	return string(digits[:])
}

func localPendingID(email string) string {
	sum := sha256.Sum256([]byte("signet-localtest-pending:" + strings.ToLower(strings.TrimSpace(email))))
	return "local_" + hex.EncodeToString(sum[:8])
}

func (l *LocalTest) StartMagicAuth(ctx context.Context, email string) (StartResult, error) {
	return StartResult{PendingID: localPendingID(email)}, nil
}

func (l *LocalTest) VerifyMagicAuth(ctx context.Context, code, pendingID, email, ip, userAgent string) (Identity, error) {
	if pendingID != localPendingID(email) || code != LocalCode(email) {
		return Identity{}, ErrInvalidCode
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return Identity{
		ProviderUserID: "local|" + email,
		Email:          email,
	}, nil
}

var _ Client = (*LocalTest)(nil)
