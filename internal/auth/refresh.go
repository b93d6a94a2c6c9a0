package auth

import (
	"context"
	"strings"
	"time"

	"signet.dev/internal/audit"
	"signet.dev/internal/obs"
)

// RefreshSession rotates a session's token pair. Every refresh token is
// single-use: the presented token is retired into the revoked ledger and a
// fresh pair is minted. A token that was already retired is a replay and
// revokes the whole session.
func (s *Service) RefreshSession(ctx context.Context, refreshToken, deviceID string, rotateRequired bool) (*RefreshResult, error) {
	if !rotateRequired {
		return nil, validationErr("rotate_required", "non-rotating refresh is not supported")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, unauthorizedErr("missing refresh token")
	}
	now := s.now().UTC()

	access, refresh, refreshID, pair, err := s.mintSessionTokens(now)
	if err != nil {
		return nil, providerErr("mint tokens", err)
	}

	s.mu.Lock()

	// Replay check comes first: a retired token presented again is the
	// signature of a stolen credential.
	if prior, ok := s.state.RevokedByValue[refreshToken]; ok {
		replayed := s.markReplayLocked(refreshToken, prior, now)
		snap := s.state.Clone()
		s.mu.Unlock()
		if replayed {
			obs.ReplaysDetected.Inc()
			if err := s.persist(ctx, snap); err != nil {
				return nil, err
			}
			_ = audit.LogEvent(ctx, "auth.refresh.replay_detected", map[string]any{
				"session_id":       prior.SessionID,
				"user_id":          prior.UserID,
				"refresh_token_id": prior.RefreshTokenID,
			})
		}
		return nil, unauthorizedErr("refresh token reuse detected")
	}

	sessID, ok := s.state.RefreshIndex[refreshToken]
	if !ok {
		s.mu.Unlock()
		return nil, unauthorizedErr("unknown refresh token")
	}
	sess, ok := s.state.Sessions[sessID]
	if !ok {
		delete(s.state.RefreshIndex, refreshToken)
		snap := s.state.Clone()
		s.mu.Unlock()
		_ = s.persist(ctx, snap)
		return nil, unauthorizedErr("unknown refresh token")
	}
	if sess.Status != SessionActive {
		s.mu.Unlock()
		return nil, unauthorizedErr("session is not active")
	}
	if !sess.RefreshExpiresAt.After(now) {
		s.expireSessionLocked(sess)
		snap := s.state.Clone()
		s.mu.Unlock()
		if err := s.persist(ctx, snap); err != nil {
			return nil, err
		}
		return nil, unauthorizedErr("refresh token expired")
	}
	if deviceID != "" && normalizeDeviceID(deviceID, sess.TokenName) != sess.DeviceID {
		s.mu.Unlock()
		return nil, forbiddenErr("refresh token presented from a different device")
	}

	// Retire the old pair. The old refresh token enters the ledger as
	// Rotated so a later replay can be recognized.
	replacedID := sess.RefreshTokenID
	s.retireRefreshLocked(sess, TokenRotated, now)
	delete(s.state.AccessIndex, sess.AccessToken)

	sess.AccessToken = access
	sess.RefreshToken = refresh
	sess.RefreshTokenID = refreshID
	sess.AccessExpiresAt = pair.AccessExpiresAt
	sess.RefreshExpiresAt = pair.RefreshExpiresAt
	sess.LastRefreshedAt = &now
	s.state.AccessIndex[access] = sess.SessionID
	s.state.RefreshIndex[refresh] = sess.SessionID

	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return nil, err
	}
	obs.RefreshRotations.Inc()
	_ = audit.LogEvent(ctx, "auth.session.refreshed", map[string]any{
		"session_id":        sess.SessionID,
		"user_id":           sess.UserID,
		"replaced_token_id": replacedID,
	})
	return &RefreshResult{Tokens: pair, ReplacedRefreshTokenID: replacedID}, nil
}

// markReplayLocked upgrades a ledger entry to ReplayDetected in both maps
// and revokes the owning session. Idempotent: a second replay of the same
// token changes nothing and reports false.
func (s *Service) markReplayLocked(tokenValue string, prior RevokedRefreshToken, now time.Time) bool {
	if prior.Reason == TokenReplayDetected {
		return false
	}
	prior.Reason = TokenReplayDetected
	s.state.RevokedByValue[tokenValue] = prior
	if byID, ok := s.state.RevokedByID[prior.RefreshTokenID]; ok {
		byID.Reason = TokenReplayDetected
		s.state.RevokedByID[prior.RefreshTokenID] = byID
	}
	if sess, ok := s.state.Sessions[prior.SessionID]; ok && !sess.Status.Terminal() {
		s.revokeSessionLocked(sess, ReasonTokenReplay, now)
	}
	return true
}

// retireRefreshLocked records the session's current refresh token in the
// revoked ledger under both keys and removes its index entry.
func (s *Service) retireRefreshLocked(sess *Session, reason RevokedTokenReason, now time.Time) {
	rec := RevokedRefreshToken{
		RefreshTokenID: sess.RefreshTokenID,
		SessionID:      sess.SessionID,
		UserID:         sess.UserID,
		DeviceID:       sess.DeviceID,
		RevokedAt:      now,
		Reason:         reason,
	}
	s.state.RevokedByValue[sess.RefreshToken] = rec
	s.state.RevokedByID[sess.RefreshTokenID] = rec
	delete(s.state.RefreshIndex, sess.RefreshToken)
}
