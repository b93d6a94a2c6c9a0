package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine counters. Registered once in Init.
var (
	ChallengesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signet_challenges_started_total",
		Help: "Magic-code challenges issued.",
	})

	ChallengeVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signet_challenge_verifications_total",
			Help: "Challenge verification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signet_sessions_created_total",
		Help: "Sessions created by challenge verification or local-test sign-in.",
	})

	RefreshRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signet_refresh_rotations_total",
		Help: "Successful refresh token rotations.",
	})

	ReplaysDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signet_refresh_replays_detected_total",
		Help: "Reuse of already-rotated or revoked refresh tokens.",
	})

	SessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signet_sessions_revoked_total",
			Help: "Sessions revoked by reason.",
		},
		[]string{"reason"},
	)

	PolicyDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signet_policy_decisions_total",
			Help: "Policy evaluations by result.",
		},
		[]string{"allowed"},
	)

	SnapshotWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signet_snapshot_writes_total",
			Help: "Durable state snapshot writes by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all collectors in the default registry.
func Init() {
	prometheus.MustRegister(
		ChallengesStarted,
		ChallengeVerifications,
		SessionsCreated,
		RefreshRotations,
		ReplaysDetected,
		SessionsRevoked,
		PolicyDecisions,
		SnapshotWrites,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
