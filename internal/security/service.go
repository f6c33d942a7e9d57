// Package security implements the authorization layer: identities,
// devices, sessions, role-based permissions, repo policies, and the audit
// log. Ordinary denials are result values; errors are reserved for
// internal faults.
package security

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/internal/ids"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// DefaultSessionTTL is how long a session remains valid.
const DefaultSessionTTL = 24 * time.Hour

// CheckResult is the outcome of an authorization check.
type CheckResult struct {
	// Allowed is the decision.
	Allowed bool `json:"allowed"`
	// Reason names the missing permission or failing rule on denial.
	Reason string `json:"reason,omitempty"`
	// Required lists the permissions the check demanded.
	Required []models.Permission `json:"required,omitempty"`
	// Missing lists the required permissions not in the effective set.
	Missing []models.Permission `json:"missing,omitempty"`
}

// Context carries the acting session and, optionally, its device. When
// Device is nil the service resolves it from the session's device id.
type Context struct {
	Session *models.Session
	Device  *models.Device
}

// CredentialVerifier validates raw credentials against an identity
// provider. Real token verification is an external concern; the default
// accepts any non-empty credential set.
type CredentialVerifier interface {
	Verify(provider models.AuthProvider, credentials map[string]string) (bool, error)
}

// acceptingVerifier is the default CredentialVerifier.
type acceptingVerifier struct{}

func (acceptingVerifier) Verify(provider models.AuthProvider, credentials map[string]string) (bool, error) {
	return len(credentials) > 0, nil
}

// Service owns users, devices, sessions, role permissions, repo policies,
// and the audit log. The role-permission table is read-only at runtime.
type Service struct {
	mu        sync.RWMutex
	users     map[string]*models.User
	devices   map[string]*models.Device
	sessions  map[string]*models.Session
	policies  map[string]*models.RepoPolicy
	rolePerms map[string][]models.Permission

	verifier    CredentialVerifier
	gen         ids.Generator
	clock       ids.Clock
	log         *zap.Logger
	auditLog    *AuditLog
	tokens      *TokenIssuer
	tokenSecret []byte
	sessionTTL  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithVerifier overrides the credential verifier.
func WithVerifier(v CredentialVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(g ids.Generator) Option {
	return func(s *Service) { s.gen = g }
}

// WithClock overrides the clock.
func WithClock(c ids.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithSessionTTL overrides the default 24 h session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithRolePermissions replaces the built-in role-permission table.
func WithRolePermissions(table map[string][]models.Permission) Option {
	return func(s *Service) { s.rolePerms = table }
}

// WithTokenSecret sets the session-token signing secret.
func WithTokenSecret(secret []byte) Option {
	return func(s *Service) { s.tokenSecret = secret }
}

// defaultRolePermissions is the built-in security role table.
func defaultRolePermissions() map[string][]models.Permission {
	return map[string][]models.Permission{
		"admin": {models.PermAdminAll},
		"operator": {
			models.PermTaskSubmit, models.PermTaskRead, models.PermTaskCancel,
			models.PermAgentInvoke, models.PermSkillExecute,
			models.PermConfigRead, models.PermConfigWrite,
		},
		"developer": {
			models.PermTaskSubmit, models.PermTaskRead, models.PermTaskCancel,
			models.PermAgentInvoke, models.PermSkillExecute, models.PermConfigRead,
		},
		"readonly": {models.PermTaskRead, models.PermConfigRead},
	}
}

// NewService creates a security service with the built-in role table.
func NewService(opts ...Option) *Service {
	clock := &ids.SystemClock{}
	s := &Service{
		users:      make(map[string]*models.User),
		devices:    make(map[string]*models.Device),
		sessions:   make(map[string]*models.Session),
		policies:   make(map[string]*models.RepoPolicy),
		rolePerms:  defaultRolePermissions(),
		verifier:   acceptingVerifier{},
		gen:        ids.UUIDGenerator{},
		clock:      clock,
		log:        zap.NewNop(),
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Holders that embed injected dependencies are built after options.
	s.auditLog = NewAuditLog(s.gen, s.clock)
	s.tokens = NewTokenIssuer(s.tokenSecret, s.clock)
	return s
}

// AuthenticateUser establishes a user identity for the given provider.
// Credential validation is delegated to the configured verifier.
func (s *Service) AuthenticateUser(provider models.AuthProvider, credentials map[string]string) (*models.User, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("unknown auth provider: %s", provider)
	}

	verified, err := s.verifier.Verify(provider, credentials)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	if !verified {
		return nil, fmt.Errorf("credentials rejected by %s provider", provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := &models.User{
		ID:          s.gen.NewID(),
		Provider:    provider,
		Email:       credentials["email"],
		DisplayName: credentials["display_name"],
		Verified:    provider != models.ProviderLocal,
	}
	s.users[user.ID] = user

	s.log.Info("user authenticated",
		zap.String("user_id", user.ID),
		zap.String("provider", string(provider)))
	return cloneUser(user), nil
}

// GetUser returns the user with the given id, or nil.
func (s *Service) GetUser(id string) *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.users[id])
}

// VerifyDevice returns the known device with the given id, updating its
// last-seen timestamp, or registers a new device at the untrusted level.
func (s *Service) VerifyDevice(deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if device, ok := s.devices[deviceID]; ok {
		device.LastSeen = now
		return cloneDevice(device), nil
	}

	device := &models.Device{
		ID:         deviceID,
		Type:       models.DeviceDesktop,
		TrustLevel: models.TrustUntrusted,
		LastSeen:   now,
	}
	s.devices[deviceID] = device
	s.log.Info("device registered", zap.String("device_id", deviceID))
	return cloneDevice(device), nil
}

// PromoteDevice raises a device's trust level. Trust is monotonic: a
// promotion to a lower level is rejected.
func (s *Service) PromoteDevice(deviceID string, level models.TrustLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	if level.Rank() < device.TrustLevel.Rank() {
		return fmt.Errorf("trust level never downgrades: %s -> %s", device.TrustLevel, level)
	}
	device.TrustLevel = level
	return nil
}

// SetDeviceType records the device's hardware classification.
func (s *Service) SetDeviceType(deviceID string, deviceType models.DeviceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	device.Type = deviceType
	return nil
}

// CreateSession grants a user+device binding the given roles for the
// configured TTL (24 h by default).
func (s *Service) CreateSession(userID, deviceID string, roles []string) (*models.Session, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("user id and device id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	session := &models.Session{
		ID:        s.gen.NewID(),
		UserID:    userID,
		DeviceID:  deviceID,
		Roles:     append([]string(nil), roles...),
		GrantedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	s.sessions[session.ID] = session

	s.log.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Strings("roles", roles))
	return cloneSession(session), nil
}

// GetSession returns the session with the given id, or nil.
func (s *Service) GetSession(id string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.sessions[id])
}

// SetSessionScope confines a session to specific repo paths.
func (s *Service) SetSessionScope(sessionID string, scope []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	session.Scope = append([]string(nil), scope...)
	return nil
}

// MintSessionToken issues a signed token presenting the session.
func (s *Service) MintSessionToken(sessionID string) (string, error) {
	s.mu.RLock()
	session := s.sessions[sessionID]
	s.mu.RUnlock()
	if session == nil {
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}
	return s.tokens.Mint(session)
}

// ParseSessionToken validates a session token and returns its claims.
func (s *Service) ParseSessionToken(token string) (*SessionClaims, error) {
	return s.tokens.Parse(token)
}

// GetEffectivePermissions returns the union of the permissions of the
// session's roles, sorted for stable output.
func (s *Service) GetEffectivePermissions(session *models.Session) []models.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectivePermissionsLocked(session)
}

func (s *Service) effectivePermissionsLocked(session *models.Session) []models.Permission {
	if session == nil {
		return nil
	}
	set := make(map[models.Permission]bool)
	for _, role := range session.Roles {
		for _, perm := range s.rolePerms[role] {
			set[perm] = true
		}
	}
	out := make([]models.Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// evaluatePermission runs the core permission algorithm without auditing.
// admin:all satisfies every check; otherwise the specific permission must
// be present. An expired session denies with a SessionExpired reason.
func (s *Service) evaluatePermission(ctx Context, perm models.Permission) CheckResult {
	if ctx.Session == nil {
		return CheckResult{
			Allowed:  false,
			Reason:   "no session",
			Required: []models.Permission{perm},
			Missing:  []models.Permission{perm},
		}
	}
	if ctx.Session.Expired(s.clock.Now()) {
		return CheckResult{
			Allowed:  false,
			Reason:   fmt.Sprintf("SessionExpired: session %s expired at %s", ctx.Session.ID, ctx.Session.ExpiresAt.Format(time.RFC3339)),
			Required: []models.Permission{perm},
		}
	}

	effective := s.effectivePermissionsLocked(ctx.Session)
	for _, have := range effective {
		if have == models.PermAdminAll || have == perm {
			return CheckResult{Allowed: true, Required: []models.Permission{perm}}
		}
	}
	return CheckResult{
		Allowed:  false,
		Reason:   fmt.Sprintf("missing permission %s", perm),
		Required: []models.Permission{perm},
		Missing:  []models.Permission{perm},
	}
}

// CheckPermission runs the permission algorithm and audits the decision.
// The optional resource names what the permission is being checked for.
func (s *Service) CheckPermission(ctx Context, perm models.Permission, resource ...string) CheckResult {
	s.mu.RLock()
	result := s.evaluatePermission(ctx, perm)
	s.mu.RUnlock()

	resourceID := ""
	if len(resource) > 0 {
		resourceID = resource[0]
	}
	s.auditDecision(ctx, "check_permission:"+string(perm), models.ResourceTask, resourceID, result)
	return result
}

// resolveDeviceLocked returns the context's device, falling back to the session
// device record. A missing device is treated as untrusted.
func (s *Service) resolveDeviceLocked(ctx Context) *models.Device {
	if ctx.Device != nil {
		return ctx.Device
	}
	if ctx.Session != nil {
		if device, ok := s.devices[ctx.Session.DeviceID]; ok {
			return device
		}
	}
	return &models.Device{TrustLevel: models.TrustUntrusted}
}

// scopePolicyLocked returns the repo policy governing the session's first
// scope entry, or nil when the session is unscoped or no policy exists.
func (s *Service) scopePolicyLocked(session *models.Session) *models.RepoPolicy {
	if session == nil || len(session.Scope) == 0 {
		return nil
	}
	return s.policies[session.Scope[0]]
}

// CheckAgentAccess authorizes invoking a specific agent: the agent:invoke
// permission, then the repo policy's per-agent rules (role intersection
// and required device trust).
func (s *Service) CheckAgentAccess(ctx Context, agentID string) CheckResult {
	s.mu.RLock()
	result := s.checkAgentAccessLocked(ctx, agentID)
	s.mu.RUnlock()

	s.auditDecision(ctx, "agent_access", models.ResourceAgent, agentID, result)
	return result
}

func (s *Service) checkAgentAccessLocked(ctx Context, agentID string) CheckResult {
	result := s.evaluatePermission(ctx, models.PermAgentInvoke)
	if !result.Allowed {
		return result
	}

	policy := s.scopePolicyLocked(ctx.Session)
	if policy == nil {
		return result
	}
	agentPolicy := policy.AgentPolicyFor(agentID)
	if agentPolicy == nil {
		return result
	}

	if len(agentPolicy.AllowedRoles) > 0 && !rolesIntersect(ctx.Session.Roles, agentPolicy.AllowedRoles) {
		return CheckResult{
			Allowed:  false,
			Reason:   fmt.Sprintf("agent %s allows roles [%s]", agentID, strings.Join(agentPolicy.AllowedRoles, ", ")),
			Required: result.Required,
		}
	}
	for _, denied := range agentPolicy.DeniedRoles {
		for _, role := range ctx.Session.Roles {
			if role == denied {
				return CheckResult{
					Allowed:  false,
					Reason:   fmt.Sprintf("agent %s denies role %s", agentID, role),
					Required: result.Required,
				}
			}
		}
	}

	if agentPolicy.RequiredTrust != "" {
		device := s.resolveDeviceLocked(ctx)
		if !device.TrustLevel.Meets(agentPolicy.RequiredTrust) {
			return CheckResult{
				Allowed:  false,
				Reason:   fmt.Sprintf("agent %s requires %s device trust, device is %s", agentID, agentPolicy.RequiredTrust, device.TrustLevel),
				Required: result.Required,
			}
		}
	}

	return result
}

// CheckSkillAccess authorizes executing a specific skill: the
// skill:execute permission, the skill policy's required permissions, role
// intersection, required trust, and the dangerous-skill rule that bars
// untrusted devices outright.
func (s *Service) CheckSkillAccess(ctx Context, skillID string) CheckResult {
	s.mu.RLock()
	result := s.checkSkillAccessLocked(ctx, skillID)
	s.mu.RUnlock()

	s.auditDecision(ctx, "skill_access", models.ResourceSkill, skillID, result)
	return result
}

func (s *Service) checkSkillAccessLocked(ctx Context, skillID string) CheckResult {
	result := s.evaluatePermission(ctx, models.PermSkillExecute)
	if !result.Allowed {
		return result
	}

	policy := s.scopePolicyLocked(ctx.Session)
	if policy == nil {
		return result
	}
	skillPolicy := policy.SkillPolicyFor(skillID)
	if skillPolicy == nil {
		return result
	}

	// Each required permission is enforced individually so the denial
	// names the first one missing.
	for _, perm := range skillPolicy.RequiredPermissions {
		permResult := s.evaluatePermission(ctx, perm)
		if !permResult.Allowed {
			permResult.Reason = fmt.Sprintf("skill %s: %s", skillID, permResult.Reason)
			return permResult
		}
	}

	if len(skillPolicy.AllowedRoles) > 0 && !rolesIntersect(ctx.Session.Roles, skillPolicy.AllowedRoles) {
		return CheckResult{
			Allowed:  false,
			Reason:   fmt.Sprintf("skill %s allows roles [%s]", skillID, strings.Join(skillPolicy.AllowedRoles, ", ")),
			Required: result.Required,
		}
	}

	device := s.resolveDeviceLocked(ctx)
	if skillPolicy.RequiredTrust != "" && !device.TrustLevel.Meets(skillPolicy.RequiredTrust) {
		return CheckResult{
			Allowed:  false,
			Reason:   fmt.Sprintf("skill %s requires %s device trust, device is %s", skillID, skillPolicy.RequiredTrust, device.TrustLevel),
			Required: result.Required,
		}
	}

	// Dangerous skills never run from untrusted devices, regardless of role.
	if skillPolicy.Dangerous && device.TrustLevel == models.TrustUntrusted {
		return CheckResult{
			Allowed:  false,
			Reason:   fmt.Sprintf("skill %s is dangerous and device trust is %s", skillID, device.TrustLevel),
			Required: result.Required,
		}
	}

	return result
}

// GetRepoPolicy returns the policy for a repo path, or nil.
func (s *Service) GetRepoPolicy(path string) *models.RepoPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[path]
	if !ok {
		return nil
	}
	cp := *policy
	return &cp
}

// SetRepoPolicy stores a policy keyed by its repo path.
func (s *Service) SetRepoPolicy(policy *models.RepoPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *policy
	s.policies[policy.RepoPath] = &cp
}

// Audit appends an entry to the audit log.
func (s *Service) Audit(entry models.AuditEntry) {
	s.auditLog.Append(entry)
}

// GetAuditLog returns entries matching the filter, oldest first.
func (s *Service) GetAuditLog(f AuditFilter) []models.AuditEntry {
	return s.auditLog.Query(f)
}

// auditDecision records one audit entry per authorization decision.
func (s *Service) auditDecision(ctx Context, action string, resourceType models.ResourceType, resourceID string, result CheckResult) {
	entry := models.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       models.AuditDenied,
		Reason:       result.Reason,
	}
	if result.Allowed {
		entry.Result = models.AuditAllowed
	}
	if ctx.Session != nil {
		entry.SessionID = ctx.Session.ID
		entry.UserID = ctx.Session.UserID
		entry.DeviceID = ctx.Session.DeviceID
	}
	s.auditLog.Append(entry)
}

func rolesIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func cloneDevice(d *models.Device) *models.Device {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Roles = append([]string(nil), s.Roles...)
	cp.Scope = append([]string(nil), s.Scope...)
	return &cp
}
