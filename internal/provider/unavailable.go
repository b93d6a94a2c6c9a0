package provider

import "context"

// Unavailable fails every call. Selected when no provider is configured and
// useful for exercising degraded-provider paths.
type Unavailable struct{}

// NewUnavailable creates the permanently failing stub.
func NewUnavailable() *Unavailable { return &Unavailable{} }

func (u *Unavailable) StartMagicAuth(ctx context.Context, email string) (StartResult, error) {
	return StartResult{}, ErrUnavailable
}

func (u *Unavailable) VerifyMagicAuth(ctx context.Context, code, pendingID, email, ip, userAgent string) (Identity, error) {
	return Identity{}, ErrUnavailable
}

var _ Client = (*Unavailable)(nil)
