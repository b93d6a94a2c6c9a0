package auth

import (
	"context"
	"strings"

	"signet.dev/internal/obs"
)

// PolicyInput is one authorization question: may the bearer of this
// credential use these scopes and publish/subscribe on these topics in
// this org?
type PolicyInput struct {
	Credential      string
	OrgID           string
	RequiredScopes  []string
	RequestedTopics []string
}

// EvaluatePolicy resolves the credential (session token or personal
// token), picks the effective org, and checks every scope and topic
// individually. The decision always itemizes granted scopes and denial
// reasons so callers can degrade on partial grants.
func (s *Service) EvaluatePolicy(ctx context.Context, in PolicyInput) (PolicyDecision, error) {
	bundle, err := s.SessionOrTokenFromAccessToken(ctx, in.Credential)
	if err != nil {
		return PolicyDecision{}, err
	}

	orgID := strings.TrimSpace(in.OrgID)
	if orgID == "" {
		orgID = bundle.Session.ActiveOrgID
	}

	decision := PolicyDecision{
		GrantedScopes: []string{},
		DeniedReasons: []string{},
	}

	m, ok := membershipIn(bundle.Memberships, orgID)
	if !ok {
		decision.Reason = "org_scope_denied"
		decision.DeniedReasons = append(decision.DeniedReasons, "org_scope_denied")
		obs.PolicyDecisions.WithLabelValues("false").Inc()
		return decision, nil
	}

	privileged := m.Role == RoleOwner || m.Role == RoleAdmin
	for _, scope := range dedupeSortedScopes(in.RequiredScopes) {
		if privileged || containsScope(m.RoleScopes, scope) {
			decision.GrantedScopes = append(decision.GrantedScopes, scope)
			continue
		}
		decision.DeniedReasons = append(decision.DeniedReasons, "scope_denied:"+scope)
	}

	for _, topic := range in.RequestedTopics {
		if topicAllowed(topic, bundle.User.ID, m.OrgID) {
			continue
		}
		decision.DeniedReasons = append(decision.DeniedReasons, "topic_denied:"+topic)
	}

	decision.Allowed = len(decision.DeniedReasons) == 0
	if !decision.Allowed && decision.Reason == "" {
		decision.Reason = decision.DeniedReasons[0]
	}
	obs.PolicyDecisions.WithLabelValues(boolLabel(decision.Allowed)).Inc()
	return decision, nil
}

func membershipIn(memberships []OrgMembership, orgID string) (OrgMembership, bool) {
	for _, m := range memberships {
		if m.OrgID == orgID || (m.OrgSlug != "" && m.OrgSlug == orgID) {
			return m, true
		}
	}
	return OrgMembership{}, false
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// topicAllowed applies the ownership-prefix rules: a principal may use
// topics under its own user prefix, under the effective org's prefix,
// and any run-scoped topic.
func topicAllowed(topic, userID, orgID string) bool {
	switch {
	case strings.HasPrefix(topic, "user:"+userID+":"):
		return true
	case strings.HasPrefix(topic, orgID+":"):
		return true
	case strings.HasPrefix(topic, "run:"):
		return true
	}
	return false
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
