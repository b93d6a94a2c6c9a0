package auth

import "time"

// SessionStatus is the lifecycle state of a session. Expired and Revoked
// are terminal.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	// SessionReauthRequired is reserved; current flows only set the
	// ReauthRequired flag on the session record.
	SessionReauthRequired SessionStatus = "reauth_required"
	SessionExpired        SessionStatus = "expired"
	SessionRevoked        SessionStatus = "revoked"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionExpired || s == SessionRevoked
}

// RevocationReason explains why a session was revoked.
type RevocationReason string

const (
	ReasonDeviceReplaced RevocationReason = "device_replaced"
	ReasonTokenReplay    RevocationReason = "token_replay"
	ReasonUserRequested  RevocationReason = "user_requested"
	ReasonSecurityPolicy RevocationReason = "security_policy"
)

// forcesReauth reports whether a revocation with this reason should require
// the user to fully re-authenticate. Device replacement and user-initiated
// revocation do not.
func (r RevocationReason) forcesReauth() bool {
	return r == ReasonTokenReplay || r == ReasonSecurityPolicy
}

// RevokedTokenReason explains why a refresh token entered the revoked ledger.
type RevokedTokenReason string

const (
	TokenRotated        RevokedTokenReason = "rotated"
	TokenSessionRevoked RevokedTokenReason = "session_revoked"
	TokenReplayDetected RevokedTokenReason = "replay_detected"
)

// Role is an organization-level role. Owner and Admin implicitly satisfy
// every scope check; Member and Viewer are restricted to their role scopes.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// PendingChallenge is a single-use proof-of-email-ownership request. It is
// removed from the state the moment a verification attempt is made.
type PendingChallenge struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	ProviderPendingID string    `json:"provider_pending_id"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Session is a device-scoped authenticated context with paired access and
// refresh tokens.
type Session struct {
	SessionID        string           `json:"session_id"`
	UserID           string           `json:"user_id"`
	Email            string           `json:"email"`
	DeviceID         string           `json:"device_id"`
	TokenName        string           `json:"token_name,omitempty"`
	ActiveOrgID      string           `json:"active_org_id"`
	AccessToken      string           `json:"access_token"`
	RefreshToken     string           `json:"refresh_token"`
	RefreshTokenID   string           `json:"refresh_token_id"`
	IssuedAt         time.Time        `json:"issued_at"`
	AccessExpiresAt  time.Time        `json:"access_expires_at"`
	RefreshExpiresAt time.Time        `json:"refresh_expires_at"`
	Status           SessionStatus    `json:"status"`
	ReauthRequired   bool             `json:"reauth_required"`
	LastRefreshedAt  *time.Time       `json:"last_refreshed_at,omitempty"`
	RevokedAt        *time.Time       `json:"revoked_at,omitempty"`
	RevokedReason    RevocationReason `json:"revoked_reason,omitempty"`
}

// RevokedRefreshToken is one entry in the append-only revoked-token ledger.
// Entries are kept under two keys: the raw token value for replay lookup
// and the token id for idempotent reason upgrades.
type RevokedRefreshToken struct {
	RefreshTokenID string             `json:"refresh_token_id"`
	SessionID      string             `json:"session_id"`
	UserID         string             `json:"user_id"`
	DeviceID       string             `json:"device_id"`
	RevokedAt      time.Time          `json:"revoked_at"`
	Reason         RevokedTokenReason `json:"reason"`
}

// OrgMembership binds a user to an organization with a role and scopes.
type OrgMembership struct {
	OrgID      string   `json:"org_id"`
	OrgSlug    string   `json:"org_slug"`
	Role       Role     `json:"role"`
	RoleScopes []string `json:"role_scopes,omitempty"`
	DefaultOrg bool     `json:"default_org"`
}

// User is an account verified through the identity provider. Every user
// carries exactly one membership per org, including a personal org
// "user:<id>".
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	ProviderID  string          `json:"external_provider_id,omitempty"`
	Memberships []OrgMembership `json:"memberships"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PersonalOrgID returns the id of the always-present personal org.
func PersonalOrgID(userID string) string { return "user:" + userID }

// PersonalAccessToken is a long-lived non-session bearer credential.
// Revocation is a timestamp; records survive until the user is deleted.
type PersonalAccessToken struct {
	TokenID    string     `json:"token_id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Token      string     `json:"token"`
	Scopes     []string   `json:"scopes"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// SessionView is a session stripped of its token secrets, safe to hand to
// callers resolving credentials.
type SessionView struct {
	SessionID        string        `json:"session_id"`
	UserID           string        `json:"user_id"`
	Email            string        `json:"email"`
	DeviceID         string        `json:"device_id"`
	TokenName        string        `json:"token_name,omitempty"`
	ActiveOrgID      string        `json:"active_org_id"`
	IssuedAt         time.Time     `json:"issued_at"`
	AccessExpiresAt  time.Time     `json:"access_expires_at"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	Status           SessionStatus `json:"status"`
	ReauthRequired   bool          `json:"reauth_required"`
}

func (s *Session) view() SessionView {
	return SessionView{
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		Email:            s.Email,
		DeviceID:         s.DeviceID,
		TokenName:        s.TokenName,
		ActiveOrgID:      s.ActiveOrgID,
		IssuedAt:         s.IssuedAt,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshExpiresAt: s.RefreshExpiresAt,
		Status:           s.Status,
		ReauthRequired:   s.ReauthRequired,
	}
}

// SessionBundle is the resolved credential: the session view, its owner,
// and the owner's memberships.
type SessionBundle struct {
	Session     SessionView     `json:"session"`
	User        User            `json:"user"`
	Memberships []OrgMembership `json:"memberships"`
}

// TokenPair carries freshly minted credentials along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshTokenID   string    `json:"refresh_token_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Challenge is returned by StartChallenge.
type Challenge struct {
	ChallengeID string    `json:"challenge_id"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignInResult is returned by VerifyChallenge and SignInLocalTest.
type SignInResult struct {
	User    User        `json:"user"`
	Session SessionView `json:"session"`
	Tokens  TokenPair   `json:"tokens"`
	NewUser bool        `json:"new_user"`
}

// RefreshResult is returned by RefreshSession.
type RefreshResult struct {
	Tokens                 TokenPair `json:"tokens"`
	ReplacedRefreshTokenID string    `json:"replaced_refresh_token_id"`
}

// RevokeTarget selects which of a user's sessions to revoke. Exactly one
// selector is honored: SessionID, then DeviceID, then All.
type RevokeTarget struct {
	SessionID string
	DeviceID  string
	All       bool
}

// RevokeOptions controls batch revocation.
type RevokeOptions struct {
	Target         RevokeTarget
	IncludeCurrent bool
	Reason         RevocationReason
}

// RevokeSummary aggregates what a batch revocation touched. All slices are
// sorted and deduplicated.
type RevokeSummary struct {
	SessionIDs      []string `json:"session_ids"`
	DeviceIDs       []string `json:"device_ids"`
	RefreshTokenIDs []string `json:"refresh_token_ids"`
}

// PolicyDecision is the always-itemized result of EvaluatePolicy. Callers
// can degrade gracefully on partial grants instead of treating
// authorization as all-or-nothing.
type PolicyDecision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason,omitempty"`
	GrantedScopes []string `json:"granted_scopes"`
	DeniedReasons []string `json:"denied_reasons"`
}
