package models

import "time"

// WorkflowStatus represents the current state of a workflow.
type WorkflowStatus string

const (
	// WorkflowPending indicates the workflow has been created but not executed.
	WorkflowPending WorkflowStatus = "pending"
	// WorkflowRunning indicates the workflow's dispatch loop is active.
	WorkflowRunning WorkflowStatus = "running"
	// WorkflowCompleted indicates every task completed successfully.
	WorkflowCompleted WorkflowStatus = "completed"
	// WorkflowFailed indicates at least one task failed or the loop stalled.
	WorkflowFailed WorkflowStatus = "failed"
	// WorkflowCancelled indicates the workflow was cancelled.
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the workflow can no longer change state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Step describes one unit of work submitted as part of a workflow.
type Step struct {
	// Role is the agent role tag the step's task is dispatched with.
	Role string `json:"role"`
	// Description is the task description. Steps are referenced by
	// description when other steps declare dependencies on them.
	Description string `json:"description"`
	// DependsOn lists descriptions of other steps in the same workflow,
	// earlier or later, that this step must wait for. A name matching no
	// step is dropped.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Workflow is a DAG of tasks with dependency edges.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id"`
	// Status is the current workflow state.
	Status WorkflowStatus `json:"status"`
	// Steps are the submitted steps in submission order.
	Steps []Step `json:"steps"`
	// TaskIDs lists the task IDs created for the steps, index-aligned
	// with Steps.
	TaskIDs []string `json:"task_ids"`
	// Prerequisites maps a task ID to the set of task IDs it waits on.
	Prerequisites map[string][]string `json:"prerequisites"`
	// Dependents maps a task ID to the set of task IDs waiting on it.
	Dependents map[string][]string `json:"dependents"`
	// CreatedAt is when the workflow was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the workflow reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
