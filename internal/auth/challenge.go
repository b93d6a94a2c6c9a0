package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"signet.dev/internal/audit"
	"signet.dev/internal/ids"
	"signet.dev/internal/obs"
	"signet.dev/internal/provider"
)

// StartChallenge opens a magic-code challenge for the address. The
// provider mails the code; the engine records the pending challenge and
// its expiry.
func (s *Service) StartChallenge(ctx context.Context, email string) (Challenge, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Challenge{}, err
	}
	if !s.allowChallenge(email) {
		return Challenge{}, validationErr("email", "too many challenge requests, retry later")
	}

	start, err := s.idp.StartMagicAuth(ctx, email)
	if err != nil {
		return Challenge{}, providerErr("start magic auth", err)
	}

	now := s.now().UTC()
	expiresAt := start.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.challengeTTL)
	}
	ch := &PendingChallenge{
		ID:                ids.New(),
		Email:             email,
		ProviderPendingID: start.PendingID,
		ExpiresAt:         expiresAt,
	}

	s.mu.Lock()
	s.state.Challenges[ch.ID] = ch
	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return Challenge{}, err
	}

	obs.ChallengesStarted.Inc()
	_ = audit.LogEvent(ctx, "auth.challenge.started", map[string]any{
		"challenge_id": ch.ID,
		"email":        email,
	})
	return Challenge{ChallengeID: ch.ID, Email: email, ExpiresAt: expiresAt}, nil
}

// VerifyChallengeInput carries everything a verification attempt needs.
type VerifyChallengeInput struct {
	ChallengeID string
	Code        string
	ClientName  string
	DeviceID    string
	IP          string
	UserAgent   string
}

// VerifyChallenge exchanges a code for a session. The challenge is
// consumed on lookup, before the provider is consulted: each issued
// challenge admits exactly one verification attempt, success or not.
func (s *Service) VerifyChallenge(ctx context.Context, in VerifyChallengeInput) (*SignInResult, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, validationErr("code", "code is required")
	}

	now := s.now().UTC()

	s.mu.Lock()
	ch, ok := s.state.Challenges[in.ChallengeID]
	if ok {
		delete(s.state.Challenges, in.ChallengeID)
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	// The consumption itself is a mutation worth durability: a replayed
	// challenge id must stay dead across restarts.
	if ok {
		if err := s.persist(ctx, snap); err != nil {
			return nil, err
		}
	}
	if !ok || !ch.ExpiresAt.After(now) {
		obs.ChallengeVerifications.WithLabelValues("rejected").Inc()
		return nil, validationErr("code", invalidCodeMessage)
	}

	identity, err := s.idp.VerifyMagicAuth(ctx, code, ch.ProviderPendingID, ch.Email, in.IP, in.UserAgent)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidCode) {
			obs.ChallengeVerifications.WithLabelValues("rejected").Inc()
			return nil, validationErr("code", invalidCodeMessage)
		}
		obs.ChallengeVerifications.WithLabelValues("provider_error").Inc()
		return nil, providerErr("verify magic auth", err)
	}

	result, err := s.completeSignIn(ctx, identity, in.ClientName, in.DeviceID)
	if err != nil {
		return nil, err
	}
	obs.ChallengeVerifications.WithLabelValues("verified").Inc()
	_ = audit.LogEvent(ctx, "auth.challenge.verified", map[string]any{
		"challenge_id": in.ChallengeID,
		"user_id":      result.User.ID,
		"session_id":   result.Session.SessionID,
		"new_user":     result.NewUser,
	})
	return result, nil
}

// SignInLocalTest issues a session through the deterministic local-test
// provider without a mailed code. Refused under any other provider mode.
func (s *Service) SignInLocalTest(ctx context.Context, email, clientName, deviceID, ip, userAgent string) (*SignInResult, error) {
	if _, ok := s.idp.(*provider.LocalTest); !ok {
		return nil, forbiddenErr("local sign-in requires the localtest provider")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	start, err := s.idp.StartMagicAuth(ctx, email)
	if err != nil {
		return nil, providerErr("start magic auth", err)
	}
	identity, err := s.idp.VerifyMagicAuth(ctx, provider.LocalCode(email), start.PendingID, email, ip, userAgent)
	if err != nil {
		return nil, providerErr("verify magic auth", err)
	}
	result, err := s.completeSignIn(ctx, identity, clientName, deviceID)
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "auth.localtest.signin", map[string]any{
		"user_id":    result.User.ID,
		"session_id": result.Session.SessionID,
	})
	return result, nil
}

// completeSignIn upserts the verified user and creates the session,
// enforcing at most one active session per (user, device).
func (s *Service) completeSignIn(ctx context.Context, identity provider.Identity, clientName, deviceID string) (*SignInResult, error) {
	now := s.now().UTC()
	device := normalizeDeviceID(deviceID, clientName)

	access, refresh, refreshID, pair, err := s.mintSessionTokens(now)
	if err != nil {
		return nil, providerErr("mint tokens", err)
	}

	s.mu.Lock()
	user, created := s.upsertUserLocked(identity, now)

	// One active session per (user, device): anything already bound to
	// this device gets replaced, without forcing reauth.
	for _, sess := range s.state.Sessions {
		if sess.UserID == user.ID && sess.DeviceID == device && sess.Status == SessionActive {
			s.revokeSessionLocked(sess, ReasonDeviceReplaced, now)
		}
	}

	sess := &Session{
		SessionID:        uuid.NewString(),
		UserID:           user.ID,
		Email:            user.Email,
		DeviceID:         device,
		TokenName:        strings.TrimSpace(clientName),
		ActiveOrgID:      user.defaultOrgID(),
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshTokenID:   refreshID,
		IssuedAt:         now,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Status:           SessionActive,
	}
	s.state.Sessions[sess.SessionID] = sess
	s.state.AccessIndex[access] = sess.SessionID
	s.state.RefreshIndex[refresh] = sess.SessionID

	result := &SignInResult{
		User:    cloneUser(user),
		Session: sess.view(),
		Tokens:  pair,
		NewUser: created,
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return nil, err
	}
	obs.SessionsCreated.Inc()
	_ = audit.LogEvent(ctx, "auth.session.created", map[string]any{
		"session_id": sess.SessionID,
		"user_id":    user.ID,
		"device_id":  device,
	})
	return result, nil
}

// upsertUserLocked matches by email first, then by provider id, and
// creates the user otherwise. Index hygiene: replacing an indexed email
// or provider id deletes the stale entry in the same mutation.
func (s *Service) upsertUserLocked(identity provider.Identity, now time.Time) (*User, bool) {
	email := identity.Email
	if norm, err := normalizeEmail(email); err == nil {
		email = norm
	}
	name := deriveName(identity.FirstName, identity.LastName, email)

	var user *User
	if id, ok := s.state.EmailIndex[email]; ok {
		user = s.state.Users[id]
	} else if id, ok := s.state.ProviderIndex[identity.ProviderUserID]; ok {
		user = s.state.Users[id]
	}

	if user == nil {
		user = &User{
			ID:         ids.New(),
			Email:      email,
			Name:       name,
			ProviderID: identity.ProviderUserID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.state.Users[user.ID] = user
		s.state.EmailIndex[email] = user.ID
		if identity.ProviderUserID != "" {
			s.state.ProviderIndex[identity.ProviderUserID] = user.ID
		}
		s.ensureMembershipsLocked(user)
		return user, true
	}

	if user.Email != email {
		delete(s.state.EmailIndex, user.Email)
		// Pending challenges bound to the replaced address would outlive
		// the user's email sweep on deletion; drop them with the index.
		for id, ch := range s.state.Challenges {
			if ch.Email == user.Email {
				delete(s.state.Challenges, id)
			}
		}
		user.Email = email
		s.state.EmailIndex[email] = user.ID
	}
	if identity.ProviderUserID != "" && user.ProviderID != identity.ProviderUserID {
		if user.ProviderID != "" {
			delete(s.state.ProviderIndex, user.ProviderID)
		}
		user.ProviderID = identity.ProviderUserID
		s.state.ProviderIndex[identity.ProviderUserID] = user.ID
	}
	if name != "" && name != email {
		user.Name = name
	} else if user.Name == "" {
		user.Name = name
	}
	user.UpdatedAt = now
	s.ensureMembershipsLocked(user)
	return user, false
}

// ensureMembershipsLocked guarantees the personal org membership exists
// and that exactly one membership is marked default.
func (s *Service) ensureMembershipsLocked(user *User) {
	personal := PersonalOrgID(user.ID)
	hasPersonal := false
	hasDefault := false
	for _, m := range user.Memberships {
		if m.OrgID == personal {
			hasPersonal = true
		}
		if m.DefaultOrg {
			hasDefault = true
		}
	}
	if !hasPersonal {
		user.Memberships = append(user.Memberships, OrgMembership{
			OrgID:      personal,
			OrgSlug:    personal,
			Role:       RoleOwner,
			DefaultOrg: !hasDefault,
		})
	} else if !hasDefault {
		for i := range user.Memberships {
			if user.Memberships[i].OrgID == personal {
				user.Memberships[i].DefaultOrg = true
				break
			}
		}
	}
}
