package models

import "testing"

func TestWorkflowStatusValid(t *testing.T) {
	for _, s := range []WorkflowStatus{
		WorkflowPending, WorkflowRunning, WorkflowCompleted, WorkflowFailed, WorkflowCancelled,
	} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if WorkflowStatus("paused").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestWorkflowStatusTerminal(t *testing.T) {
	for _, s := range []WorkflowStatus{WorkflowCompleted, WorkflowFailed, WorkflowCancelled} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []WorkflowStatus{WorkflowPending, WorkflowRunning} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
