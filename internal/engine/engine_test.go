package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/convoy/internal/store"
	"github.com/ShayCichocki/convoy/pkg/models"
)

func newTestEngine() *Engine {
	return New(store.NewMemoryStore())
}

func createTask(t *testing.T, e *Engine) *models.Task {
	t.Helper()
	task, err := e.CreateTask(CreateRequest{Description: "test task", Role: "code-creator"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateTaskStartsPending(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	if task.Status != models.TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if task.ID == "" {
		t.Error("expected non-empty id")
	}
	if task.StartedAt != nil || task.CompletedAt != nil {
		t.Error("new task must not carry start/completion timestamps")
	}

	events, err := e.Events(task.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.EventCreated {
		t.Errorf("expected single created event, got %v", events)
	}
}

func TestLegalLifecycle(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	for _, status := range []models.TaskStatus{
		models.TaskStatusPlanning,
		models.TaskStatusRunning,
		models.TaskStatusWaiting,
		models.TaskStatusRunning,
		models.TaskStatusCompleted,
	} {
		if _, err := e.UpdateStatus(task.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	final, _ := e.Get(task.ID)
	if final.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if final.StartedAt == nil {
		t.Error("startedAt must be set after entering planning")
	}
	if final.CompletedAt == nil {
		t.Error("completedAt must be set on terminal status")
	}
	if final.StartedAt.After(*final.CompletedAt) {
		t.Error("startedAt must not be after completedAt")
	}
}

func TestIllegalTransitionLeavesTaskUnchanged(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	_, err := e.UpdateStatus(task.ID, models.TaskStatusCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, _ := e.Get(task.ID)
	if got.Status != models.TaskStatusPending {
		t.Errorf("task must be unchanged after illegal transition, got %s", got.Status)
	}
	events, _ := e.Events(task.ID)
	if len(events) != 1 {
		t.Errorf("illegal transition must journal nothing, got %d events", len(events))
	}
}

func TestStartedAtNotOverwritten(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	if _, err := e.UpdateStatus(task.ID, models.TaskStatusPlanning); err != nil {
		t.Fatal(err)
	}
	first, _ := e.Get(task.ID)

	time.Sleep(2 * time.Millisecond)
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusRunning); err != nil {
		t.Fatal(err)
	}
	second, _ := e.Get(task.ID)

	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Error("startedAt must not be overwritten by later transitions")
	}
}

func TestUpdateProgressClamps(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	if err := e.UpdateProgress(task.ID, 150); err != nil {
		t.Fatal(err)
	}
	got, _ := e.Get(task.ID)
	if got.Progress != 100 {
		t.Errorf("expected 100, got %d", got.Progress)
	}

	if err := e.UpdateProgress(task.ID, -10); err != nil {
		t.Fatal(err)
	}
	got, _ = e.Get(task.ID)
	if got.Progress != 0 {
		t.Errorf("expected 0, got %d", got.Progress)
	}
}

func TestUpdateProgressSkipsJournalWhenUnchanged(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	if err := e.UpdateProgress(task.ID, 50); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateProgress(task.ID, 50); err != nil {
		t.Fatal(err)
	}

	events, _ := e.Events(task.ID)
	progressEvents := 0
	for _, ev := range events {
		if ev.Kind == models.EventProgressUpdated {
			progressEvents++
		}
	}
	if progressEvents != 1 {
		t.Errorf("expected exactly 1 progress event, got %d", progressEvents)
	}
}

func TestProgressRejectedOnTerminalTask(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusCancelled); err != nil {
		t.Fatal(err)
	}

	err := e.UpdateProgress(task.ID, 10)
	if !errors.Is(err, ErrTerminalImmutable) {
		t.Errorf("expected ErrTerminalImmutable, got %v", err)
	}
}

func TestSetOutputRejectedOnTerminalTask(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusCancelled); err != nil {
		t.Fatal(err)
	}

	err := e.SetOutput(task.ID, "late output")
	if !errors.Is(err, ErrTerminalImmutable) {
		t.Errorf("expected ErrTerminalImmutable, got %v", err)
	}
}

func TestSetErrorTransitionsAtomically(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusPlanning); err != nil {
		t.Fatal(err)
	}

	if err := e.SetError(task.ID, "boom"); err != nil {
		t.Fatal(err)
	}

	got, _ := e.Get(task.ID)
	if got.Status != models.TaskStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.Error != "boom" {
		t.Errorf("expected error string, got %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("completedAt must be set on failure")
	}

	events, _ := e.Events(task.ID)
	last := events[len(events)-1]
	if last.Kind != models.EventStatusChanged || last.NewStatus != models.TaskStatusFailed {
		t.Errorf("journal must end with the failed transition, got %+v", last)
	}
}

func TestCancelNonTerminal(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	ok, err := e.Cancel(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected cancel to succeed on pending task")
	}
	got, _ := e.Get(task.ID)
	if got.Status != models.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
}

func TestCancelTerminalReturnsFalseWithoutJournal(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusCancelled); err != nil {
		t.Fatal(err)
	}
	before, _ := e.Events(task.ID)

	ok, err := e.Cancel(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("cancel on terminal task must return false")
	}
	after, _ := e.Events(task.ID)
	if len(after) != len(before) {
		t.Error("cancel on terminal task must journal nothing")
	}
}

func TestJournalTimestampsMonotonic(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	for _, status := range []models.TaskStatus{
		models.TaskStatusPlanning, models.TaskStatusRunning, models.TaskStatusCompleted,
	} {
		if _, err := e.UpdateStatus(task.ID, status); err != nil {
			t.Fatal(err)
		}
	}

	events, _ := e.Events(task.ID)
	if events[0].Kind != models.EventCreated {
		t.Error("first journal event must be created")
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Error("journal timestamps must be non-decreasing")
		}
	}
}

func TestUnknownTaskMutations(t *testing.T) {
	e := newTestEngine()

	if _, err := e.UpdateStatus("nope", models.TaskStatusPlanning); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if err := e.UpdateProgress("nope", 10); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := e.Cancel("nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	// Reads on unknown ids return nil, not an error.
	got, err := e.Get("nope")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil for unknown task, got %v, %v", got, err)
	}
}
