package auth

import (
	"context"
	"sort"
	"strings"
	"time"

	"signet.dev/internal/audit"
	"signet.dev/internal/ids"
)

// IssueTokenInput describes a personal access token to mint. A zero TTL
// means the token never expires.
type IssueTokenInput struct {
	UserID string
	Name   string
	Scopes []string
	TTL    time.Duration
}

// IssueToken mints a personal access token for the user. The raw token
// value is returned once, in the record; later listings expose it too
// since the store is the only holder of the secret.
func (s *Service) IssueToken(ctx context.Context, in IssueTokenInput) (PersonalAccessToken, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return PersonalAccessToken{}, validationErr("user_id", "user_id is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return PersonalAccessToken{}, validationErr("name", "name is required")
	}
	now := s.now().UTC()
	if in.TTL < 0 {
		return PersonalAccessToken{}, validationErr("ttl", "ttl must not be negative")
	}
	var expiresAt *time.Time
	if in.TTL > 0 {
		exp := now.Add(in.TTL)
		expiresAt = &exp
	}
	value, err := newOpaqueToken(patPrefix)
	if err != nil {
		return PersonalAccessToken{}, providerErr("mint token", err)
	}

	tok := &PersonalAccessToken{
		TokenID:   ids.New(),
		UserID:    in.UserID,
		Name:      name,
		Token:     value,
		Scopes:    dedupeSortedScopes(in.Scopes),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	s.mu.Lock()
	if _, ok := s.state.Users[in.UserID]; !ok {
		s.mu.Unlock()
		return PersonalAccessToken{}, unauthorizedErr("unknown user")
	}
	s.state.Tokens[tok.TokenID] = tok
	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return PersonalAccessToken{}, err
	}
	_ = audit.LogEvent(ctx, "auth.token.issued", map[string]any{
		"token_id": tok.TokenID,
		"user_id":  in.UserID,
		"name":     name,
	})
	out := *tok
	out.Scopes = append([]string(nil), tok.Scopes...)
	return out, nil
}

// ListTokens returns the user's personal access tokens, newest first.
func (s *Service) ListTokens(ctx context.Context, userID string) ([]PersonalAccessToken, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationErr("user_id", "user_id is required")
	}
	s.mu.RLock()
	out := make([]PersonalAccessToken, 0)
	for _, tok := range s.state.Tokens {
		if tok.UserID != userID {
			continue
		}
		t := *tok
		t.Scopes = append([]string(nil), tok.Scopes...)
		t.LastUsedAt = copyTime(tok.LastUsedAt)
		t.ExpiresAt = copyTime(tok.ExpiresAt)
		t.RevokedAt = copyTime(tok.RevokedAt)
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TokenID < out[j].TokenID
	})
	return out, nil
}

// RevokeToken marks a token revoked. Ownership is enforced; revoking an
// already-revoked token is a no-op success and keeps the original
// timestamp.
func (s *Service) RevokeToken(ctx context.Context, userID, tokenID string) error {
	now := s.now().UTC()

	s.mu.Lock()
	tok, ok := s.state.Tokens[tokenID]
	if !ok {
		s.mu.Unlock()
		return unauthorizedErr("unknown token")
	}
	if tok.UserID != userID {
		s.mu.Unlock()
		return forbiddenErr("token belongs to another user")
	}
	if tok.RevokedAt != nil {
		s.mu.Unlock()
		return nil
	}
	tok.RevokedAt = &now
	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.token.revoked", map[string]any{
		"token_id": tokenID,
		"user_id":  userID,
	})
	return nil
}

// RevokeAllTokens revokes every live token the user owns and reports how
// many were newly revoked.
func (s *Service) RevokeAllTokens(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, validationErr("user_id", "user_id is required")
	}
	now := s.now().UTC()

	s.mu.Lock()
	count := 0
	for _, tok := range s.state.Tokens {
		if tok.UserID != userID || tok.RevokedAt != nil {
			continue
		}
		revoked := now
		tok.RevokedAt = &revoked
		count++
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	if count == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, snap); err != nil {
		return count, err
	}
	_ = audit.LogEvent(ctx, "auth.tokens.bulk_revoked", map[string]any{
		"user_id": userID,
		"count":   count,
	})
	return count, nil
}

// CurrentTokenID resolves the token id of the secret the caller is
// currently presenting. The secret must belong to the user and be live.
func (s *Service) CurrentTokenID(ctx context.Context, userID, secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", unauthorizedErr("missing token")
	}
	now := s.now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.state.Tokens {
		if tok.UserID != userID || tok.Token != secret {
			continue
		}
		if tok.RevokedAt != nil {
			return "", unauthorizedErr("token revoked")
		}
		if tok.ExpiresAt != nil && !tok.ExpiresAt.After(now) {
			return "", unauthorizedErr("token expired")
		}
		return tok.TokenID, nil
	}
	return "", unauthorizedErr("unknown token")
}

// TokenIDFromBundle extracts the personal token id from a synthetic
// session id of the form "pat:<token_id>". Reports false for real
// session ids.
func TokenIDFromBundle(sessionID string) (string, bool) {
	id, ok := strings.CutPrefix(sessionID, "pat:")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
