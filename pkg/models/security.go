package models

import "time"

// AuthProvider identifies how a user identity was established.
type AuthProvider string

const (
	// ProviderOIDC is a generic OpenID Connect provider.
	ProviderOIDC AuthProvider = "oidc"
	// ProviderGitHub is GitHub OAuth.
	ProviderGitHub AuthProvider = "github"
	// ProviderGoogle is Google OAuth.
	ProviderGoogle AuthProvider = "google"
	// ProviderLocal is a local, unfederated identity.
	ProviderLocal AuthProvider = "local"
)

// Valid returns true if the provider is a known value.
func (p AuthProvider) Valid() bool {
	switch p {
	case ProviderOIDC, ProviderGitHub, ProviderGoogle, ProviderLocal:
		return true
	default:
		return false
	}
}

// User is an authenticated identity.
type User struct {
	// ID is the unique identifier for this user.
	ID string `json:"id"`
	// Provider identifies the identity provider.
	Provider AuthProvider `json:"provider"`
	// Email is the user's email address, if known.
	Email string `json:"email,omitempty"`
	// DisplayName is the user's display name, if known.
	DisplayName string `json:"display_name,omitempty"`
	// Verified indicates the provider vouched for this identity.
	Verified bool `json:"verified"`
}

// DeviceType classifies the hardware a session originates from.
type DeviceType string

const (
	// DeviceDesktop is an interactive workstation.
	DeviceDesktop DeviceType = "desktop"
	// DeviceMobile is a phone or tablet.
	DeviceMobile DeviceType = "mobile"
	// DeviceServer is an unattended server.
	DeviceServer DeviceType = "server"
	// DeviceCI is a continuous-integration runner.
	DeviceCI DeviceType = "ci"
)

// TrustLevel orders how much a device is trusted. Higher values are more
// trusted; comparisons use Rank.
type TrustLevel string

const (
	// TrustUntrusted is the default for newly registered devices.
	TrustUntrusted TrustLevel = "untrusted"
	// TrustVerified means the device passed an out-of-band check.
	TrustVerified TrustLevel = "verified"
	// TrustTrusted is the highest trust level.
	TrustTrusted TrustLevel = "trusted"
)

// Rank returns a comparable ordering for trust levels.
func (t TrustLevel) Rank() int {
	switch t {
	case TrustTrusted:
		return 2
	case TrustVerified:
		return 1
	default:
		return 0
	}
}

// Meets returns true if this trust level satisfies the required minimum.
func (t TrustLevel) Meets(required TrustLevel) bool {
	return t.Rank() >= required.Rank()
}

// Device is a registered piece of hardware.
type Device struct {
	// ID is the unique identifier for this device.
	ID string `json:"id"`
	// Type classifies the device.
	Type DeviceType `json:"type"`
	// TrustLevel is the device's current trust. Never downgrades implicitly.
	TrustLevel TrustLevel `json:"trust_level"`
	// LastSeen is the last time the device was observed.
	LastSeen time.Time `json:"last_seen"`
}

// Session binds a user to a device with a time-bounded role grant.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// UserID is the owning user.
	UserID string `json:"user_id"`
	// DeviceID is the owning device.
	DeviceID string `json:"device_id"`
	// Roles lists the security role IDs granted to the session.
	Roles []string `json:"roles"`
	// GrantedAt is when the session was created.
	GrantedAt time.Time `json:"granted_at"`
	// ExpiresAt is when the session stops being valid. Always after GrantedAt.
	ExpiresAt time.Time `json:"expires_at"`
	// Scope optionally confines the session to specific repo paths.
	Scope []string `json:"scope,omitempty"`
}

// Expired reports whether the session is no longer valid at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Permission is a named capability from the closed vocabulary below.
type Permission string

const (
	// PermTaskSubmit allows submitting tasks.
	PermTaskSubmit Permission = "task:submit"
	// PermTaskRead allows reading task state.
	PermTaskRead Permission = "task:read"
	// PermTaskCancel allows cancelling tasks.
	PermTaskCancel Permission = "task:cancel"
	// PermAgentInvoke allows dispatching work to agents.
	PermAgentInvoke Permission = "agent:invoke"
	// PermSkillExecute allows executing skills.
	PermSkillExecute Permission = "skill:execute"
	// PermConfigRead allows reading configuration.
	PermConfigRead Permission = "config:read"
	// PermConfigWrite allows writing configuration.
	PermConfigWrite Permission = "config:write"
	// PermAdminAll satisfies every permission check.
	PermAdminAll Permission = "admin:all"
)

// AgentPolicy restricts which roles may invoke a specific agent.
type AgentPolicy struct {
	// AgentID names the agent this policy applies to.
	AgentID string `json:"agent_id" yaml:"agent_id"`
	// AllowedRoles lists roles permitted to invoke the agent.
	AllowedRoles []string `json:"allowed_roles,omitempty" yaml:"allowed_roles,omitempty"`
	// DeniedRoles lists roles explicitly denied.
	DeniedRoles []string `json:"denied_roles,omitempty" yaml:"denied_roles,omitempty"`
	// RequiredTrust, if set, is the minimum device trust to invoke.
	RequiredTrust TrustLevel `json:"required_trust,omitempty" yaml:"required_trust,omitempty"`
}

// SkillPolicy restricts execution of a specific skill.
type SkillPolicy struct {
	// SkillID names the skill this policy applies to.
	SkillID string `json:"skill_id" yaml:"skill_id"`
	// RequiredPermissions must all be held by the session.
	RequiredPermissions []Permission `json:"required_permissions,omitempty" yaml:"required_permissions,omitempty"`
	// AllowedRoles lists roles permitted to execute the skill.
	AllowedRoles []string `json:"allowed_roles,omitempty" yaml:"allowed_roles,omitempty"`
	// RequiredTrust, if set, is the minimum device trust to execute.
	RequiredTrust TrustLevel `json:"required_trust,omitempty" yaml:"required_trust,omitempty"`
	// Dangerous marks skills never runnable from untrusted devices.
	Dangerous bool `json:"dangerous" yaml:"dangerous"`
}

// RepoPolicy holds scoped authorization rules keyed by a repository path.
type RepoPolicy struct {
	// RepoPath is the repository path this policy governs.
	RepoPath string `json:"repo_path" yaml:"repo_path"`
	// EnforceTrust enables the minimum trust check.
	EnforceTrust bool `json:"enforce_trust" yaml:"enforce_trust"`
	// MinTrustLevel is the repository-wide minimum device trust.
	MinTrustLevel TrustLevel `json:"min_trust_level,omitempty" yaml:"min_trust_level,omitempty"`
	// AllowedRoles lists roles permitted in this repository.
	AllowedRoles []string `json:"allowed_roles,omitempty" yaml:"allowed_roles,omitempty"`
	// AllowedUsers optionally restricts to specific users.
	AllowedUsers []string `json:"allowed_users,omitempty" yaml:"allowed_users,omitempty"`
	// DeniedUsers lists users explicitly denied.
	DeniedUsers []string `json:"denied_users,omitempty" yaml:"denied_users,omitempty"`
	// AgentPolicies holds per-agent restrictions.
	AgentPolicies []AgentPolicy `json:"agent_policies,omitempty" yaml:"agent_policies,omitempty"`
	// SkillPolicies holds per-skill restrictions.
	SkillPolicies []SkillPolicy `json:"skill_policies,omitempty" yaml:"skill_policies,omitempty"`
}

// AgentPolicyFor returns the per-agent policy for an agent ID, or nil.
func (p *RepoPolicy) AgentPolicyFor(agentID string) *AgentPolicy {
	for i := range p.AgentPolicies {
		if p.AgentPolicies[i].AgentID == agentID {
			return &p.AgentPolicies[i]
		}
	}
	return nil
}

// SkillPolicyFor returns the per-skill policy for a skill ID, or nil.
func (p *RepoPolicy) SkillPolicyFor(skillID string) *SkillPolicy {
	for i := range p.SkillPolicies {
		if p.SkillPolicies[i].SkillID == skillID {
			return &p.SkillPolicies[i]
		}
	}
	return nil
}

// ResourceType classifies the resource an audit entry refers to.
type ResourceType string

const (
	// ResourceTask is a task resource.
	ResourceTask ResourceType = "task"
	// ResourceAgent is an agent resource.
	ResourceAgent ResourceType = "agent"
	// ResourceSkill is a skill resource.
	ResourceSkill ResourceType = "skill"
	// ResourceConfig is a configuration resource.
	ResourceConfig ResourceType = "config"
)

// AuditResult is the outcome recorded for an audited action.
type AuditResult string

const (
	// AuditAllowed records a permitted action.
	AuditAllowed AuditResult = "allowed"
	// AuditDenied records a refused action.
	AuditDenied AuditResult = "denied"
	// AuditError records an action that failed internally.
	AuditError AuditResult = "error"
)

// AuditEntry is one append-only record of an authorization decision.
type AuditEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`
	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`
	// Action names the checked operation.
	Action string `json:"action"`
	// UserID is the acting user, if known.
	UserID string `json:"user_id,omitempty"`
	// DeviceID is the acting device, if known.
	DeviceID string `json:"device_id,omitempty"`
	// SessionID is the acting session, if known.
	SessionID string `json:"session_id,omitempty"`
	// ResourceType classifies the target resource.
	ResourceType ResourceType `json:"resource_type"`
	// ResourceID identifies the target resource.
	ResourceID string `json:"resource_id"`
	// Result is the decision outcome.
	Result AuditResult `json:"result"`
	// Reason explains a denial or error.
	Reason string `json:"reason,omitempty"`
	// Metadata holds free-form annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}
