package auth

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestIssueAndResolvePersonalToken(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "amy@example.com", "d1")

	tok, err := svc.IssueToken(ctx, IssueTokenInput{
		UserID: res.User.ID,
		Name:   "ci-deploy",
		Scopes: []string{"runtime.write", "runtime.read", "runtime.write"},
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !strings.HasPrefix(tok.Token, "spat_") {
		t.Fatalf("token missing prefix: %q", tok.Token)
	}
	if !reflect.DeepEqual(tok.Scopes, []string{"runtime.read", "runtime.write"}) {
		t.Fatalf("scopes not deduped+sorted: %v", tok.Scopes)
	}
	if tok.ExpiresAt != nil {
		t.Fatalf("zero ttl should mean no expiry, got %v", tok.ExpiresAt)
	}

	bundle, err := svc.SessionOrTokenFromAccessToken(ctx, tok.Token)
	if err != nil {
		t.Fatalf("SessionOrTokenFromAccessToken: %v", err)
	}
	if bundle.Session.SessionID != "pat:"+tok.TokenID {
		t.Fatalf("expected synthetic session id, got %q", bundle.Session.SessionID)
	}
	if bundle.Session.ActiveOrgID != PersonalOrgID(res.User.ID) {
		t.Fatalf("pat bundle should resolve the default org, got %q", bundle.Session.ActiveOrgID)
	}

	id, ok := TokenIDFromBundle(bundle.Session.SessionID)
	if !ok || id != tok.TokenID {
		t.Fatalf("TokenIDFromBundle: %q %v", id, ok)
	}

	listed, err := svc.ListTokens(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(listed) != 1 || listed[0].TokenID != tok.TokenID {
		t.Fatalf("unexpected listing: %+v", listed)
	}
	if listed[0].LastUsedAt == nil {
		t.Fatalf("last_used_at should be stamped by resolution")
	}
}

func TestIssueTokenValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "ben@example.com", "d1")

	if _, err := svc.IssueToken(ctx, IssueTokenInput{UserID: res.User.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing name should be rejected, got %v", err)
	}
	if _, err := svc.IssueToken(ctx, IssueTokenInput{UserID: res.User.ID, Name: "x", TTL: -time.Hour}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative ttl should be rejected, got %v", err)
	}
	if _, err := svc.IssueToken(ctx, IssueTokenInput{UserID: "nope", Name: "x"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user should be unauthorized, got %v", err)
	}
}

func TestPersonalTokenExpiry(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, nil, WithClock(func() time.Time { return current }))
	ctx := context.Background()
	res := signIn(t, svc, "cleo@example.com", "d1")

	tok, err := svc.IssueToken(ctx, IssueTokenInput{UserID: res.User.ID, Name: "short", TTL: time.Hour})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(current.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", tok.ExpiresAt)
	}

	current = current.Add(2 * time.Hour)
	if _, err := svc.SessionOrTokenFromAccessToken(ctx, tok.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token should be unauthorized, got %v", err)
	}
	if _, err := svc.CurrentTokenID(ctx, res.User.ID, tok.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("CurrentTokenID on expired token should fail, got %v", err)
	}
}

func TestRevokeTokenOwnershipAndIdempotence(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	owner := signIn(t, svc, "dora@example.com", "d1")
	other := signIn(t, svc, "eve@example.com", "d1")

	tok, err := svc.IssueToken(ctx, IssueTokenInput{UserID: owner.User.ID, Name: "t"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if err := svc.RevokeToken(ctx, other.User.ID, tok.TokenID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cross-user revoke should be forbidden, got %v", err)
	}
	if err := svc.RevokeToken(ctx, owner.User.ID, tok.TokenID); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	listed, _ := svc.ListTokens(ctx, owner.User.ID)
	first := listed[0].RevokedAt
	if first == nil {
		t.Fatalf("revoked_at not set")
	}
	if err := svc.RevokeToken(ctx, owner.User.ID, tok.TokenID); err != nil {
		t.Fatalf("second revoke should be a no-op, got %v", err)
	}
	listed, _ = svc.ListTokens(ctx, owner.User.ID)
	if !listed[0].RevokedAt.Equal(*first) {
		t.Fatalf("revoked_at changed on idempotent revoke")
	}
	// Soft revoke: the record stays listable.
	if len(listed) != 1 {
		t.Fatalf("revoked token should remain listed, got %d", len(listed))
	}
	if _, err := svc.SessionOrTokenFromAccessToken(ctx, tok.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked token should not resolve, got %v", err)
	}
}

func TestRevokeAllTokens(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "fay@example.com", "d1")

	for _, name := range []string{"a", "b", "c"} {
		if _, err := svc.IssueToken(ctx, IssueTokenInput{UserID: res.User.ID, Name: name}); err != nil {
			t.Fatalf("IssueToken(%s): %v", name, err)
		}
	}
	n, err := svc.RevokeAllTokens(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("RevokeAllTokens: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked, got %d", n)
	}
	n, err = svc.RevokeAllTokens(ctx, res.User.ID)
	if err != nil || n != 0 {
		t.Fatalf("second pass should revoke nothing: %d, %v", n, err)
	}
}

func TestCurrentTokenID(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "gus@example.com", "d1")

	tok, err := svc.IssueToken(ctx, IssueTokenInput{UserID: res.User.ID, Name: "t"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	id, err := svc.CurrentTokenID(ctx, res.User.ID, tok.Token)
	if err != nil || id != tok.TokenID {
		t.Fatalf("CurrentTokenID: %q, %v", id, err)
	}
	if _, err := svc.CurrentTokenID(ctx, res.User.ID, "spat_bogus"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown secret should be unauthorized, got %v", err)
	}
	if err := svc.RevokeToken(ctx, res.User.ID, tok.TokenID); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := svc.CurrentTokenID(ctx, res.User.ID, tok.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked secret should be unauthorized, got %v", err)
	}
}
