package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"signet.dev/internal/obs"
	"signet.dev/internal/provider"
)

const (
	defaultChallengeTTL = 10 * time.Minute
	defaultAccessTTL    = time.Hour
	defaultRefreshTTL   = 30 * 24 * time.Hour

	defaultChallengeRate  = rate.Limit(1.0 / 30.0) // one challenge per 30s per email, sustained
	defaultChallengeBurst = 3

	limiterPruneThreshold = 4096
	limiterTTL            = time.Hour
)

// Service is the credential and session lifecycle engine. All state lives
// behind one reader/writer lock; every mutation clones the full state
// under the lock and persists the clone after releasing it.
type Service struct {
	mu    sync.RWMutex
	state *State

	store SnapshotStore
	idp   provider.Client
	now   func() time.Time

	challengeTTL time.Duration
	accessTTL    time.Duration
	refreshTTL   time.Duration

	limiterMu      sync.Mutex
	limiters       map[string]*emailLimiter
	challengeRate  rate.Limit
	challengeBurst int
}

type emailLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithChallengeTTL configures the fallback challenge lifetime applied when
// the provider does not report an expiry.
func WithChallengeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithChallengeRate configures per-email challenge throttling. A burst of
// zero disables throttling.
func WithChallengeRate(limit rate.Limit, burst int) ServiceOption {
	return func(s *Service) {
		s.challengeRate = limit
		s.challengeBurst = burst
	}
}

// NewService restores engine state from the snapshot store and wires the
// identity provider client selected at startup.
func NewService(ctx context.Context, store SnapshotStore, idp provider.Client, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		store:          store,
		idp:            idp,
		now:            time.Now,
		challengeTTL:   defaultChallengeTTL,
		accessTTL:      defaultAccessTTL,
		refreshTTL:     defaultRefreshTTL,
		limiters:       make(map[string]*emailLimiter),
		challengeRate:  defaultChallengeRate,
		challengeBurst: defaultChallengeBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store != nil {
		st, err := s.store.Load(ctx)
		if err != nil {
			return nil, providerErr("load state", err)
		}
		st.normalize()
		s.state = st
	} else {
		s.state = NewState()
	}
	return s, nil
}

// persist writes the clone produced under the write lock. Errors surface
// as the Provider kind: the mutation already applied in memory and there
// is no rollback, so callers treat this as "durability unconfirmed".
func (s *Service) persist(ctx context.Context, snap *State) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, snap); err != nil {
		obs.SnapshotWrites.WithLabelValues("error").Inc()
		obs.Logger().WithError(err).Error("state snapshot write failed")
		return providerErr("persist state", err)
	}
	obs.SnapshotWrites.WithLabelValues("ok").Inc()
	return nil
}

// allowChallenge enforces the per-email token bucket. Stale buckets are
// pruned inline; the engine never spawns background work.
func (s *Service) allowChallenge(email string) bool {
	if s.challengeBurst <= 0 {
		return true
	}
	now := s.now()
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	if len(s.limiters) > limiterPruneThreshold {
		for k, l := range s.limiters {
			if now.Sub(l.seen) > limiterTTL {
				delete(s.limiters, k)
			}
		}
	}
	l, ok := s.limiters[email]
	if !ok {
		l = &emailLimiter{lim: rate.NewLimiter(s.challengeRate, s.challengeBurst)}
		s.limiters[email] = l
	}
	l.seen = now
	return l.lim.Allow()
}

// mintSessionTokens generates the opaque credential set for a session.
func (s *Service) mintSessionTokens(now time.Time) (access, refresh, refreshID string, pair TokenPair, err error) {
	access, err = newOpaqueToken(accessTokenPrefix)
	if err != nil {
		return "", "", "", TokenPair{}, err
	}
	refresh, err = newOpaqueToken(refreshTokenPrefix)
	if err != nil {
		return "", "", "", TokenPair{}, err
	}
	refreshID, err = newOpaqueToken(refreshTokenIDPrefix)
	if err != nil {
		return "", "", "", TokenPair{}, err
	}
	pair = TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshTokenID:   refreshID,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}
	return access, refresh, refreshID, pair, nil
}
