package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/pkg/models"
)

const (
	// defaultPollInterval is the gap between remote state polls.
	defaultPollInterval = 1000 * time.Millisecond
	// defaultRequestTimeout bounds each remote HTTP call.
	defaultRequestTimeout = 30 * time.Second
)

// sessionResponse is the wire shape of a created remote session.
type sessionResponse struct {
	SessionID    string   `json:"session_id"`
	UserID       string   `json:"user_id"`
	CreatedAt    string   `json:"created_at"`
	LastActivity string   `json:"last_activity"`
	Permissions  []string `json:"permissions"`
}

// taskStateResponse is the wire shape of a remote task state. The state
// field uses the same seven status strings as the local engine; that
// equality is a design requirement of the protocol.
type taskStateResponse struct {
	TaskID        string            `json:"task_id"`
	ExecutionUUID string            `json:"execution_uuid"`
	State         string            `json:"state"`
	Success       bool              `json:"success"`
	Result        string            `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
	ExecutionTime float64           `json:"execution_time,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// cancelResponse is the wire shape of a remote cancellation result.
type cancelResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

// agentResponse is the wire shape of one remote agent.
type agentResponse struct {
	AgentType   string `json:"agent_type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// skillResponse is the wire shape of one remote skill.
type skillResponse struct {
	SkillID     string `json:"skill_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RemoteAdapter executes tasks on an external execution node over
// HTTP/JSON, observing progress by polling.
type RemoteAdapter struct {
	baseURL      string
	userID       string
	deviceID     string
	pollInterval time.Duration
	client       *http.Client
	log          *zap.Logger

	mu        sync.Mutex
	sessionID string
}

// RemoteOption configures a RemoteAdapter.
type RemoteOption func(*RemoteAdapter)

// WithIdentity attaches user and device identifiers to session creation.
func WithIdentity(userID, deviceID string) RemoteOption {
	return func(a *RemoteAdapter) {
		a.userID = userID
		a.deviceID = deviceID
	}
}

// WithPollInterval overrides the default 1 s poll interval.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(a *RemoteAdapter) { a.pollInterval = d }
}

// WithRequestTimeout overrides the default 30 s per-request timeout.
func WithRequestTimeout(d time.Duration) RemoteOption {
	return func(a *RemoteAdapter) { a.client.Timeout = d }
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(l *zap.Logger) RemoteOption {
	return func(a *RemoteAdapter) { a.log = l }
}

// NewRemoteAdapter creates a remote transport for the given base URL.
func NewRemoteAdapter(baseURL string, opts ...RemoteOption) *RemoteAdapter {
	a := &RemoteAdapter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: defaultPollInterval,
		client:       &http.Client{Timeout: defaultRequestTimeout},
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect creates a remote session and caches its id. It is idempotent: a
// second call without an intervening Close is a no-op.
func (a *RemoteAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked(ctx)
}

func (a *RemoteAdapter) connectLocked(ctx context.Context) error {
	if a.sessionID != "" {
		return nil
	}

	endpoint := a.baseURL + "/api/runtime/sessions"
	q := url.Values{}
	if a.userID != "" {
		q.Set("user_id", a.userID)
	}
	if a.deviceID != "" {
		q.Set("device_id", a.deviceID)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var resp sessionResponse
	if err := a.doJSON(ctx, http.MethodPost, endpoint, nil, &resp); err != nil {
		return err
	}
	a.sessionID = resp.SessionID
	a.log.Debug("remote session created", zap.String("session_id", resp.SessionID))
	return nil
}

// session returns the cached session id, connecting first if needed.
func (a *RemoteAdapter) session(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.connectLocked(ctx); err != nil {
		return "", err
	}
	return a.sessionID, nil
}

// SubmitTask auto-connects and posts the submission. The returned state's
// id is the remote task id.
func (a *RemoteAdapter) SubmitTask(ctx context.Context, req Request) (*TaskState, error) {
	sessionID, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]string{
		"agent_type": req.AgentType,
		"prompt":     req.Prompt,
		"context":    req.Context,
		"session_id": sessionID,
	}

	var resp taskStateResponse
	if err := a.doJSON(ctx, http.MethodPost, a.baseURL+"/api/runtime/tasks/submit", body, &resp); err != nil {
		return nil, err
	}
	return stateFromResponse(&resp), nil
}

// StreamTaskUpdates polls the remote state endpoint at the configured
// interval, yielding exactly one update per observed status change.
// A terminal status is yielded, then the stream ends; a completed status
// carries a synthesized progress of 100. A transport failure mid-poll
// yields an update whose Err is ErrTransportUnavailable and ends the
// stream; the caller must resubscribe.
func (a *RemoteAdapter) StreamTaskUpdates(ctx context.Context, id string) (<-chan StreamUpdate, error) {
	out := make(chan StreamUpdate)

	go func() {
		defer close(out)

		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()

		// Submission already reported pending, so pending is the baseline
		// and only departures from it count as changes.
		lastStatus := models.TaskStatusPending
		for {
			var resp taskStateResponse
			err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/api/runtime/tasks/"+id+"/state", nil, &resp)
			if err != nil {
				select {
				case out <- StreamUpdate{Err: fmt.Errorf("%w: poll %s: %v", ErrTransportUnavailable, id, err)}:
				case <-ctx.Done():
				}
				return
			}

			state := stateFromResponse(&resp)
			if state.Status != lastStatus {
				lastStatus = state.Status
				select {
				case out <- StreamUpdate{State: *state}:
				case <-ctx.Done():
					return
				}
				if state.Status.Terminal() {
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// QueryTaskState is a single GET. A non-2xx response or a network error
// returns nil rather than an error.
func (a *RemoteAdapter) QueryTaskState(ctx context.Context, id string) (*TaskState, error) {
	var resp taskStateResponse
	if err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/api/runtime/tasks/"+id+"/state", nil, &resp); err != nil {
		return nil, nil
	}
	return stateFromResponse(&resp), nil
}

// CancelTask posts a cancel request. The remote success field is the
// answer on HTTP 2xx; anything else is false.
func (a *RemoteAdapter) CancelTask(ctx context.Context, id string) (bool, error) {
	sessionID, err := a.session(ctx)
	if err != nil {
		return false, nil
	}

	body := map[string]string{"session_id": sessionID}
	var resp cancelResponse
	if err := a.doJSON(ctx, http.MethodPost, a.baseURL+"/api/runtime/tasks/"+id+"/cancel", body, &resp); err != nil {
		return false, nil
	}
	return resp.Success, nil
}

// ListAgents fetches the remote agent catalog, mapping agent_type into the
// local id field.
func (a *RemoteAdapter) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	sessionID, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	var resp []agentResponse
	if err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/api/runtime/agents?session_id="+url.QueryEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]AgentInfo, 0, len(resp))
	for _, agent := range resp {
		out = append(out, AgentInfo{ID: agent.AgentType, Name: agent.Name, Description: agent.Description})
	}
	return out, nil
}

// ListSkills fetches the remote skill catalog, mapping skill_id into the
// local id field.
func (a *RemoteAdapter) ListSkills(ctx context.Context) ([]SkillInfo, error) {
	sessionID, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	var resp []skillResponse
	if err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/api/runtime/skills?session_id="+url.QueryEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]SkillInfo, 0, len(resp))
	for _, skill := range resp {
		out = append(out, SkillInfo{ID: skill.SkillID, Name: skill.Name, Description: skill.Description})
	}
	return out, nil
}

// Close clears the cached session id. The remote session is not revoked;
// cleanup is best-effort and left to the node's own expiry.
func (a *RemoteAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = ""
	return nil
}

// doJSON performs one HTTP round trip with a JSON body and decodes a JSON
// response. Network failures, timeouts, and non-2xx statuses all map to
// ErrTransportUnavailable.
func (a *RemoteAdapter) doJSON(ctx context.Context, method, endpoint string, body any, into any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransportUnavailable, method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: status %d", ErrTransportUnavailable, method, endpoint, resp.StatusCode)
	}

	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrTransportUnavailable, err)
		}
	}
	return nil
}

// stateFromResponse maps a wire task state into the local view,
// synthesizing progress=100 on completion.
func stateFromResponse(resp *taskStateResponse) *TaskState {
	state := &TaskState{
		ID:     resp.TaskID,
		Status: models.TaskStatus(resp.State),
		Output: resp.Result,
		Error:  resp.Error,
	}
	if state.Status == models.TaskStatusCompleted {
		state.Progress = 100
	}
	return state
}

// Compile-time verification that RemoteAdapter implements Adapter.
var _ Adapter = (*RemoteAdapter)(nil)
