package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusPlanning indicates the task is being prepared for execution.
	TaskStatusPlanning TaskStatus = "planning"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusWaiting indicates the task is suspended and can be resumed.
	TaskStatusWaiting TaskStatus = "waiting"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled by an operator.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusPlanning, TaskStatusRunning,
		TaskStatusWaiting, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// transitions is the allowed state-change table. A transition absent from
// this table is rejected by the engine.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:  {TaskStatusPlanning, TaskStatusCancelled},
	TaskStatusPlanning: {TaskStatusRunning, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusRunning:  {TaskStatusWaiting, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusWaiting:  {TaskStatusRunning, TaskStatusFailed, TaskStatusCancelled},
}

// CanTransition returns true if the state machine permits moving from one
// status to another. Terminal statuses permit nothing.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task represents a unit of work tracked by the lifecycle state machine.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Description is the human-readable description of the work.
	Description string `json:"description"`
	// Role is the agent role tag this task should be dispatched with.
	Role string `json:"role,omitempty"`
	// SessionID scopes the task to an authenticated session, if any.
	SessionID string `json:"session_id,omitempty"`
	// ParentID is the ID of the parent task, if any.
	ParentID string `json:"parent_id,omitempty"`
	// CreatedAt is when the task record was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task first entered planning or running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is set exactly when the task reaches a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Output holds the result produced by the task.
	Output string `json:"output,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// Progress is a completion estimate clamped to [0,100].
	Progress int `json:"progress"`
	// Metadata holds free-form key/value annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		cp.CompletedAt = &completed
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// EventKind identifies the kind of a task journal event.
type EventKind string

const (
	// EventCreated is the first event journaled for every task.
	EventCreated EventKind = "created"
	// EventStatusChanged records a legal state transition.
	EventStatusChanged EventKind = "status_changed"
	// EventProgressUpdated records a change to the progress value.
	EventProgressUpdated EventKind = "progress_updated"
	// EventOutputAdded records the output string being set.
	EventOutputAdded EventKind = "output_added"
	// EventErrorSet records the error string being set.
	EventErrorSet EventKind = "error_set"
)

// TaskEvent is an append-only journal record attached to a task.
type TaskEvent struct {
	// TaskID is the ID of the task this event belongs to.
	TaskID string `json:"task_id"`
	// Kind is the event kind.
	Kind EventKind `json:"kind"`
	// Timestamp is when the event was journaled. Within a task the
	// journal is totally ordered and timestamps never decrease.
	Timestamp time.Time `json:"timestamp"`
	// OldStatus is the prior status for status_changed events.
	OldStatus TaskStatus `json:"old_status,omitempty"`
	// NewStatus is the resulting status for status_changed events.
	NewStatus TaskStatus `json:"new_status,omitempty"`
	// Data carries free-form event payload (progress value, output, error).
	Data string `json:"data,omitempty"`
}

// ClampProgress clamps a progress value to the [0,100] range.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
