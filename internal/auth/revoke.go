package auth

import (
	"context"
	"sort"
	"strings"
	"time"

	"signet.dev/internal/audit"
	"signet.dev/internal/obs"
)

// revokeSessionLocked is the single revocation primitive. It transitions
// the session to Revoked, retires its refresh token into the ledger,
// removes both token index entries, and sets reauth_required when the
// reason warrants it. Idempotent on terminal sessions.
func (s *Service) revokeSessionLocked(sess *Session, reason RevocationReason, now time.Time) bool {
	if sess.Status.Terminal() {
		return false
	}
	sess.Status = SessionRevoked
	sess.RevokedAt = &now
	sess.RevokedReason = reason
	if reason.forcesReauth() {
		sess.ReauthRequired = true
	}
	s.retireRefreshLocked(sess, TokenSessionRevoked, now)
	delete(s.state.AccessIndex, sess.AccessToken)
	obs.SessionsRevoked.WithLabelValues(string(reason)).Inc()
	return true
}

// RevokeSessionByAccessToken revokes the caller's own session. Unknown
// tokens are unauthorized; a session already terminal is a no-op success.
func (s *Service) RevokeSessionByAccessToken(ctx context.Context, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return unauthorizedErr("missing access token")
	}
	now := s.now().UTC()

	s.mu.Lock()
	sessID, ok := s.state.AccessIndex[accessToken]
	if !ok {
		s.mu.Unlock()
		return unauthorizedErr("unknown access token")
	}
	sess, ok := s.state.Sessions[sessID]
	if !ok {
		delete(s.state.AccessIndex, accessToken)
		snap := s.state.Clone()
		s.mu.Unlock()
		_ = s.persist(ctx, snap)
		return unauthorizedErr("unknown access token")
	}
	changed := s.revokeSessionLocked(sess, ReasonUserRequested, now)
	snap := s.state.Clone()
	s.mu.Unlock()

	if !changed {
		return nil
	}
	if err := s.persist(ctx, snap); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.session.revoked", map[string]any{
		"session_id": sess.SessionID,
		"user_id":    sess.UserID,
		"reason":     string(ReasonUserRequested),
	})
	return nil
}

// RevokeUserSessions revokes a user's sessions by selector. Exactly one
// selector in opts.Target is honored, in order: SessionID, DeviceID, All.
// The caller's own session (currentSessionID) is skipped unless
// IncludeCurrent is set. Revoking zero sessions is a success with an empty
// summary.
func (s *Service) RevokeUserSessions(ctx context.Context, userID, currentSessionID string, opts RevokeOptions) (RevokeSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return RevokeSummary{}, validationErr("user_id", "user_id is required")
	}
	reason := opts.Reason
	if reason == "" {
		reason = ReasonUserRequested
	}
	// Sessions store normalized device ids; fold the selector the same
	// way so the caller can pass the string it signed in with.
	target := opts.Target
	if target.DeviceID != "" {
		target.DeviceID = normalizeDeviceID(target.DeviceID, "")
	}
	now := s.now().UTC()

	s.mu.Lock()
	var summary RevokeSummary
	for _, sess := range s.state.Sessions {
		if sess.UserID != userID {
			continue
		}
		if !matchTarget(sess, target) {
			continue
		}
		if sess.SessionID == currentSessionID && !opts.IncludeCurrent {
			continue
		}
		tokenID := sess.RefreshTokenID
		if s.revokeSessionLocked(sess, reason, now) {
			summary.SessionIDs = append(summary.SessionIDs, sess.SessionID)
			summary.DeviceIDs = append(summary.DeviceIDs, sess.DeviceID)
			summary.RefreshTokenIDs = append(summary.RefreshTokenIDs, tokenID)
		}
	}
	summary.normalize()
	snap := s.state.Clone()
	s.mu.Unlock()

	if len(summary.SessionIDs) == 0 {
		return summary, nil
	}
	if err := s.persist(ctx, snap); err != nil {
		return summary, err
	}
	_ = audit.LogEvent(ctx, "auth.sessions.bulk_revoked", map[string]any{
		"user_id":  userID,
		"reason":   string(reason),
		"sessions": len(summary.SessionIDs),
	})
	return summary, nil
}

func matchTarget(sess *Session, t RevokeTarget) bool {
	switch {
	case t.SessionID != "":
		return sess.SessionID == t.SessionID
	case t.DeviceID != "":
		return sess.DeviceID == t.DeviceID
	default:
		return t.All
	}
}

func (r *RevokeSummary) normalize() {
	r.SessionIDs = dedupeSorted(r.SessionIDs)
	r.DeviceIDs = dedupeSorted(r.DeviceIDs)
	r.RefreshTokenIDs = dedupeSorted(r.RefreshTokenIDs)
}

func dedupeSorted(in []string) []string {
	if in == nil {
		return []string{}
	}
	sort.Strings(in)
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// DeleteProfile removes a user and everything anchored to them: sessions
// are revoked for the cascade's side effects (ledger entries, indices)
// and then deleted outright, along with personal tokens, pending
// challenges for the user's email, and the user's index entries. Other
// users' records are untouched.
func (s *Service) DeleteProfile(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return validationErr("user_id", "user_id is required")
	}
	now := s.now().UTC()

	s.mu.Lock()
	user, ok := s.state.Users[userID]
	if !ok {
		s.mu.Unlock()
		return unauthorizedErr("unknown user")
	}

	for id, sess := range s.state.Sessions {
		if sess.UserID != userID {
			continue
		}
		s.revokeSessionLocked(sess, ReasonUserRequested, now)
		// Revocation handles index removal for active sessions; terminal
		// ones may still hold indexed tokens from pre-expiry writes.
		delete(s.state.AccessIndex, sess.AccessToken)
		delete(s.state.RefreshIndex, sess.RefreshToken)
		delete(s.state.Sessions, id)
	}
	for id, tok := range s.state.Tokens {
		if tok.UserID == userID {
			delete(s.state.Tokens, id)
		}
	}
	for id, ch := range s.state.Challenges {
		if ch.Email == user.Email {
			delete(s.state.Challenges, id)
		}
	}
	for value, rec := range s.state.RevokedByValue {
		if rec.UserID == userID {
			delete(s.state.RevokedByValue, value)
		}
	}
	for id, rec := range s.state.RevokedByID {
		if rec.UserID == userID {
			delete(s.state.RevokedByID, id)
		}
	}
	delete(s.state.EmailIndex, user.Email)
	if user.ProviderID != "" {
		delete(s.state.ProviderIndex, user.ProviderID)
	}
	delete(s.state.Users, userID)

	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.profile.deleted", map[string]any{
		"user_id": userID,
	})
	return nil
}
