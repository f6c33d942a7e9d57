// Package transport defines the adapter contract that actually executes
// tasks, and its two implementations: in-process (local) and HTTP polling
// (remote). Future adapters (message-bus, in-cluster RPC) satisfy the same
// interface.
package transport

import (
	"context"
	"errors"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// ErrTransportUnavailable indicates a transient transport failure. The
// caller may retry, or resubscribe for a failed stream.
var ErrTransportUnavailable = errors.New("transport unavailable")

// Request describes a task submission.
type Request struct {
	// AgentType is the role tag to execute the task with.
	AgentType string
	// Prompt is the task description.
	Prompt string
	// Context is supplementary input for the agent.
	Context string
	// SessionID scopes the task to an authenticated session, if any.
	SessionID string
}

// TaskState is the transport's view of a task. The status vocabulary is
// identical on both sides of every transport.
type TaskState struct {
	// ID is the task identifier (local or remote, depending on adapter).
	ID string `json:"id"`
	// Status is the task's lifecycle state.
	Status models.TaskStatus `json:"status"`
	// Output is the result produced so far.
	Output string `json:"output,omitempty"`
	// Error is the failure message, if failed.
	Error string `json:"error,omitempty"`
	// Progress is the completion estimate in [0,100].
	Progress int `json:"progress"`
}

// StreamUpdate is one element of a task update stream. Err is set when the
// stream fails mid-flight; the stream terminates after an error or after a
// terminal state.
type StreamUpdate struct {
	// State is the observed task state.
	State TaskState
	// Err is a stream failure, typically ErrTransportUnavailable.
	Err error
}

// AgentInfo describes an available agent role.
type AgentInfo struct {
	// ID is the agent/role identifier.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Description summarizes the agent's purpose.
	Description string `json:"description,omitempty"`
}

// SkillInfo describes an available skill.
type SkillInfo struct {
	// ID is the skill identifier.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Description summarizes the skill.
	Description string `json:"description,omitempty"`
}

// Adapter executes tasks. SubmitTask returns a pending task before any
// execution begins; execution itself is always asynchronous.
type Adapter interface {
	// SubmitTask creates the task and schedules execution.
	SubmitTask(ctx context.Context, req Request) (*TaskState, error)
	// StreamTaskUpdates returns a finite stream of task updates.
	StreamTaskUpdates(ctx context.Context, id string) (<-chan StreamUpdate, error)
	// QueryTaskState returns the task's current state, or nil if unknown.
	QueryTaskState(ctx context.Context, id string) (*TaskState, error)
	// CancelTask requests cancellation; true if the task was cancelled.
	CancelTask(ctx context.Context, id string) (bool, error)
	// ListAgents enumerates the available agent roles.
	ListAgents(ctx context.Context) ([]AgentInfo, error)
	// ListSkills enumerates the available skills.
	ListSkills(ctx context.Context) ([]SkillInfo, error)
	// Close releases adapter resources.
	Close() error
}

// StateFromTask maps a task record to the transport view.
func StateFromTask(t *models.Task) *TaskState {
	if t == nil {
		return nil
	}
	return &TaskState{
		ID:       t.ID,
		Status:   t.Status,
		Output:   t.Output,
		Error:    t.Error,
		Progress: t.Progress,
	}
}
