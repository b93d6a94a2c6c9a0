package auth

import (
	"context"
	"errors"
	"strings"

	"signet.dev/internal/audit"
)

// SessionFromAccessToken resolves an access token to its session bundle.
// Expiry is lazy: an expired token observed here transitions the session
// to Expired and removes both token indices before reporting unauthorized.
func (s *Service) SessionFromAccessToken(ctx context.Context, accessToken string) (*SessionBundle, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, unauthorizedErr("missing access token")
	}
	now := s.now().UTC()

	s.mu.Lock()
	sessID, ok := s.state.AccessIndex[accessToken]
	if !ok {
		s.mu.Unlock()
		return nil, unauthorizedErr("unknown access token")
	}
	sess, ok := s.state.Sessions[sessID]
	if !ok {
		// Dangling index entry; repair and refuse.
		delete(s.state.AccessIndex, accessToken)
		snap := s.state.Clone()
		s.mu.Unlock()
		_ = s.persist(ctx, snap)
		return nil, unauthorizedErr("unknown access token")
	}
	if sess.Status != SessionActive {
		// Terminal sessions should not stay resolvable by token.
		delete(s.state.AccessIndex, accessToken)
		status := sess.Status
		snap := s.state.Clone()
		s.mu.Unlock()
		if err := s.persist(ctx, snap); err != nil {
			return nil, err
		}
		return nil, unauthorizedErr("session is " + string(status))
	}
	if !sess.AccessExpiresAt.After(now) {
		s.expireSessionLocked(sess)
		snap := s.state.Clone()
		s.mu.Unlock()
		if err := s.persist(ctx, snap); err != nil {
			return nil, err
		}
		return nil, unauthorizedErr("access token expired")
	}
	user, ok := s.state.Users[sess.UserID]
	if !ok {
		s.mu.Unlock()
		return nil, unauthorizedErr("unknown access token")
	}
	bundle := s.bundleLocked(sess, user)
	s.mu.Unlock()
	return bundle, nil
}

// SessionOrTokenFromAccessToken resolves either a session access token or
// a personal access token. PAT hits yield a synthetic bundle whose session
// id is "pat:<token_id>" so downstream consumers can tell the credential
// kinds apart.
func (s *Service) SessionOrTokenFromAccessToken(ctx context.Context, token string) (*SessionBundle, error) {
	bundle, err := s.SessionFromAccessToken(ctx, token)
	if err == nil {
		return bundle, nil
	}
	if !errors.Is(err, ErrUnauthorized) {
		return nil, err
	}
	return s.bundleFromPersonalToken(ctx, strings.TrimSpace(token))
}

func (s *Service) bundleFromPersonalToken(ctx context.Context, token string) (*SessionBundle, error) {
	now := s.now().UTC()

	s.mu.Lock()
	var pat *PersonalAccessToken
	for _, t := range s.state.Tokens {
		if t.Token == token {
			pat = t
			break
		}
	}
	if pat == nil {
		s.mu.Unlock()
		return nil, unauthorizedErr("unknown token")
	}
	if pat.RevokedAt != nil {
		s.mu.Unlock()
		return nil, unauthorizedErr("token revoked")
	}
	if pat.ExpiresAt != nil && !pat.ExpiresAt.After(now) {
		s.mu.Unlock()
		return nil, unauthorizedErr("token expired")
	}
	user, ok := s.state.Users[pat.UserID]
	if !ok {
		s.mu.Unlock()
		return nil, unauthorizedErr("unknown token")
	}
	used := now
	pat.LastUsedAt = &used
	s.ensureMembershipsLocked(user)

	u := cloneUser(user)
	bundle := &SessionBundle{
		Session: SessionView{
			SessionID:   "pat:" + pat.TokenID,
			UserID:      user.ID,
			Email:       user.Email,
			DeviceID:    "pat:" + pat.TokenID,
			TokenName:   pat.Name,
			ActiveOrgID: user.defaultOrgID(),
			IssuedAt:    pat.CreatedAt,
			Status:      SessionActive,
		},
		User:        u,
		Memberships: u.Memberships,
	}
	if pat.ExpiresAt != nil {
		bundle.Session.AccessExpiresAt = *pat.ExpiresAt
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	// LastUsedAt is advisory; a failed snapshot write must not turn a
	// valid bearer into an error.
	_ = s.persist(ctx, snap)
	return bundle, nil
}

// SwitchOrganization re-targets the session's active org. The caller must
// hold a membership in the destination, matched by org id or slug.
func (s *Service) SwitchOrganization(ctx context.Context, accessToken, orgID string) (*SessionBundle, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, validationErr("org_id", "org_id is required")
	}
	bundle, err := s.SessionFromAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, ok := s.state.Sessions[bundle.Session.SessionID]
	if !ok || sess.Status != SessionActive {
		s.mu.Unlock()
		return nil, unauthorizedErr("session is not active")
	}
	user, ok := s.state.Users[sess.UserID]
	if !ok {
		s.mu.Unlock()
		return nil, unauthorizedErr("session is not active")
	}
	m, ok := user.membership(orgID)
	if !ok {
		s.mu.Unlock()
		return nil, forbiddenErr("no membership in organization")
	}
	sess.ActiveOrgID = m.OrgID
	out := s.bundleLocked(sess, user)
	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "auth.session.org_switched", map[string]any{
		"session_id": sess.SessionID,
		"user_id":    user.ID,
		"org_id":     m.OrgID,
	})
	return out, nil
}

// expireSessionLocked transitions an active session to Expired and removes
// its token index entries. Expired is terminal and not a security event,
// so the refresh token does not enter the revoked ledger.
func (s *Service) expireSessionLocked(sess *Session) {
	sess.Status = SessionExpired
	delete(s.state.AccessIndex, sess.AccessToken)
	delete(s.state.RefreshIndex, sess.RefreshToken)
}

func (s *Service) bundleLocked(sess *Session, user *User) *SessionBundle {
	u := cloneUser(user)
	return &SessionBundle{
		Session:     sess.view(),
		User:        u,
		Memberships: u.Memberships,
	}
}
