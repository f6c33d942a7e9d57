package models

import (
	"testing"
	"time"
)

func TestTrustLevelMeets(t *testing.T) {
	tests := []struct {
		have, need TrustLevel
		want       bool
	}{
		{TrustUntrusted, TrustUntrusted, true},
		{TrustUntrusted, TrustVerified, false},
		{TrustUntrusted, TrustTrusted, false},
		{TrustVerified, TrustUntrusted, true},
		{TrustVerified, TrustVerified, true},
		{TrustVerified, TrustTrusted, false},
		{TrustTrusted, TrustTrusted, true},
		{TrustTrusted, TrustVerified, true},
	}
	for _, tc := range tests {
		if got := tc.have.Meets(tc.need); got != tc.want {
			t.Errorf("%s.Meets(%s) = %v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{GrantedAt: now, ExpiresAt: now.Add(time.Hour)}

	if s.Expired(now) {
		t.Error("session should be valid at grant time")
	}
	if s.Expired(now.Add(59 * time.Minute)) {
		t.Error("session should be valid before expiry")
	}
	if !s.Expired(now.Add(time.Hour)) {
		t.Error("session should be expired at expiry instant")
	}
	if !s.Expired(now.Add(2 * time.Hour)) {
		t.Error("session should be expired after expiry")
	}
}

func TestAuthProviderValid(t *testing.T) {
	for _, p := range []AuthProvider{ProviderOIDC, ProviderGitHub, ProviderGoogle, ProviderLocal} {
		if !p.Valid() {
			t.Errorf("expected %s to be valid", p)
		}
	}
	if AuthProvider("saml").Valid() {
		t.Error("expected unknown provider to be invalid")
	}
}

func TestRepoPolicyLookups(t *testing.T) {
	p := &RepoPolicy{
		RepoPath: "/repo",
		AgentPolicies: []AgentPolicy{
			{AgentID: "code-creator", AllowedRoles: []string{"developer"}},
		},
		SkillPolicies: []SkillPolicy{
			{SkillID: "shell-exec", Dangerous: true},
		},
	}

	if ap := p.AgentPolicyFor("code-creator"); ap == nil || len(ap.AllowedRoles) != 1 {
		t.Errorf("expected agent policy for code-creator, got %v", ap)
	}
	if p.AgentPolicyFor("unknown") != nil {
		t.Error("expected nil for unknown agent")
	}
	if sp := p.SkillPolicyFor("shell-exec"); sp == nil || !sp.Dangerous {
		t.Errorf("expected dangerous skill policy, got %v", sp)
	}
	if p.SkillPolicyFor("unknown") != nil {
		t.Error("expected nil for unknown skill")
	}
}
