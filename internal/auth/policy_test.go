package auth

import (
	"context"
	"reflect"
	"testing"
)

func grantMembership(t *testing.T, svc *Service, userID string, m OrgMembership) {
	t.Helper()
	svc.mu.Lock()
	user, ok := svc.state.Users[userID]
	if !ok {
		svc.mu.Unlock()
		t.Fatalf("unknown user %s", userID)
	}
	user.Memberships = append(user.Memberships, m)
	svc.mu.Unlock()
}

func TestPolicyPartialGrant(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "mia@example.com", "d1")
	grantMembership(t, svc, res.User.ID, OrgMembership{
		OrgID: "org_acme", Role: RoleMember, RoleScopes: []string{"runtime.read"},
	})

	dec, err := svc.EvaluatePolicy(ctx, PolicyInput{
		Credential:     res.Tokens.AccessToken,
		OrgID:          "org_acme",
		RequiredScopes: []string{"runtime.read", "runtime.write"},
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("partial grant must not be allowed overall")
	}
	if !reflect.DeepEqual(dec.GrantedScopes, []string{"runtime.read"}) {
		t.Fatalf("unexpected granted scopes: %v", dec.GrantedScopes)
	}
	if !reflect.DeepEqual(dec.DeniedReasons, []string{"scope_denied:runtime.write"}) {
		t.Fatalf("unexpected denied reasons: %v", dec.DeniedReasons)
	}
}

func TestPolicyOwnerBypassesScopes(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "noa@example.com", "d1")

	// Personal org membership is Owner.
	dec, err := svc.EvaluatePolicy(ctx, PolicyInput{
		Credential:     res.Tokens.AccessToken,
		RequiredScopes: []string{"runtime.read", "admin.manage"},
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if !dec.Allowed || len(dec.DeniedReasons) != 0 {
		t.Fatalf("owner should pass every scope: %+v", dec)
	}
	if len(dec.GrantedScopes) != 2 {
		t.Fatalf("expected both scopes granted: %v", dec.GrantedScopes)
	}
}

func TestPolicyOrgScopeDenied(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "ola@example.com", "d1")

	dec, err := svc.EvaluatePolicy(ctx, PolicyInput{
		Credential:     res.Tokens.AccessToken,
		OrgID:          "org_stranger",
		RequiredScopes: []string{"runtime.read"},
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if dec.Allowed || dec.Reason != "org_scope_denied" {
		t.Fatalf("expected org_scope_denied, got %+v", dec)
	}
}

func TestPolicyTopicRules(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "pia@example.com", "d1")
	grantMembership(t, svc, res.User.ID, OrgMembership{
		OrgID: "org_acme", Role: RoleMember,
	})

	dec, err := svc.EvaluatePolicy(ctx, PolicyInput{
		Credential: res.Tokens.AccessToken,
		OrgID:      "org_acme",
		RequestedTopics: []string{
			"user:" + res.User.ID + ":events",
			"org_acme:jobs",
			"run:build-17",
			"user:someone-else:events",
			"org_other:jobs",
		},
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("foreign topics should deny the decision")
	}
	want := []string{
		"topic_denied:user:someone-else:events",
		"topic_denied:org_other:jobs",
	}
	if !reflect.DeepEqual(dec.DeniedReasons, want) {
		t.Fatalf("unexpected denied reasons: %v", dec.DeniedReasons)
	}
}

func TestPolicyDefaultsToActiveOrg(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "rex@example.com", "d1")

	dec, err := svc.EvaluatePolicy(ctx, PolicyInput{
		Credential:     res.Tokens.AccessToken,
		RequiredScopes: []string{"anything"},
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("owner of the active personal org should be allowed: %+v", dec)
	}
}

func TestPolicyWithPersonalToken(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	res := signIn(t, svc, "sam@example.com", "d1")

	tok, err := svc.IssueToken(ctx, IssueTokenInput{UserID: res.User.ID, Name: "agent"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	dec, err := svc.EvaluatePolicy(ctx, PolicyInput{
		Credential:     tok.Token,
		RequiredScopes: []string{"runtime.read"},
	})
	if err != nil {
		t.Fatalf("EvaluatePolicy: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("pat bearer should evaluate against the default org: %+v", dec)
	}
}
