package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/internal/engine"
	"github.com/ShayCichocki/convoy/internal/ids"
	"github.com/ShayCichocki/convoy/internal/spawn"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// ErrWorkflowStuck indicates the dispatch loop found no dispatchable task
// while non-terminal tasks remain. It is a safety net behind the
// creation-time cycle check and marks the workflow failed.
var ErrWorkflowStuck = errors.New("workflow stuck: no dispatchable tasks remain")

// ErrWorkflowNotFound indicates an unknown workflow id.
var ErrWorkflowNotFound = errors.New("workflow not found")

// outputSeparator prefixes each completed prerequisite's output when
// assembling a dependent task's input.
const outputSeparator = "\n\n--- upstream output ---\n"

// childSessionMetaKey is the task metadata key holding the spawned
// subagent's session handle.
const childSessionMetaKey = "child_session_key"

// Orchestrator owns workflows: it lowers steps into pending tasks, runs
// the wave-parallel dispatch loop, and aggregates terminal statuses.
// Workflows are independent; any number may execute concurrently.
type Orchestrator struct {
	engine  *engine.Engine
	spawner spawn.Spawner
	gen     ids.Generator
	clock   ids.Clock
	log     *zap.Logger

	mu        sync.RWMutex
	workflows map[string]*models.Workflow

	// events is the channel for emitting orchestrator events.
	events chan Event
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(g ids.Generator) Option {
	return func(o *Orchestrator) { o.gen = g }
}

// WithClock overrides the clock.
func WithClock(c ids.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an Orchestrator over the given engine and spawn collaborator.
func New(eng *engine.Engine, spawner spawn.Spawner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:    eng,
		spawner:   spawner,
		gen:       ids.UUIDGenerator{},
		clock:     &ids.SystemClock{},
		log:       zap.NewNop(),
		workflows: make(map[string]*models.Workflow),
		events:    make(chan Event, 100),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateWorkflow lowers steps into pending tasks after verifying the
// dependency graph is acyclic. On a cycle it fails with ErrWorkflowCyclic
// before any task exists, so nothing is journaled.
func (o *Orchestrator) CreateWorkflow(steps []models.Step) (*models.Workflow, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow needs at least one step")
	}

	descriptions := make([]string, len(steps))
	dependsOn := make([][]string, len(steps))
	for i, step := range steps {
		descriptions[i] = step.Description
		dependsOn[i] = step.DependsOn
	}

	graph := buildStepGraph(descriptions, dependsOn)
	if graph.hasCycle() {
		return nil, fmt.Errorf("%w", ErrWorkflowCyclic)
	}

	wf := &models.Workflow{
		ID:            o.gen.NewID(),
		Status:        models.WorkflowPending,
		Steps:         append([]models.Step(nil), steps...),
		TaskIDs:       make([]string, len(steps)),
		Prerequisites: make(map[string][]string),
		Dependents:    make(map[string][]string),
		CreatedAt:     o.clock.Now(),
	}

	for i, step := range steps {
		task, err := o.engine.CreateTask(engine.CreateRequest{
			Description: step.Description,
			Role:        step.Role,
			Metadata:    map[string]string{"workflow_id": wf.ID},
		})
		if err != nil {
			return nil, fmt.Errorf("create task for step %d: %w", i, err)
		}
		wf.TaskIDs[i] = task.ID
	}
	for i := range steps {
		id := wf.TaskIDs[i]
		for _, j := range graph.prereqs[i] {
			wf.Prerequisites[id] = append(wf.Prerequisites[id], wf.TaskIDs[j])
		}
		for _, j := range graph.dependents[i] {
			wf.Dependents[id] = append(wf.Dependents[id], wf.TaskIDs[j])
		}
	}

	o.mu.Lock()
	o.workflows[wf.ID] = wf
	o.mu.Unlock()

	o.log.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.Int("steps", len(steps)))
	return cloneWorkflow(wf), nil
}

// GetWorkflow returns the workflow with the given id, or nil.
func (o *Orchestrator) GetWorkflow(id string) *models.Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneWorkflow(o.workflows[id])
}

// ExecuteWorkflow runs the dispatch loop: repeatedly compute the set of
// tasks whose prerequisites are all settled, dispatch them in parallel,
// and wait for the wave before recomputing. The loop ends when every task
// is terminal; it fails the workflow with ErrWorkflowStuck if no task is
// dispatchable while non-terminal tasks remain.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	o.mu.Lock()
	wf, ok := o.workflows[id]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if wf.Status == models.WorkflowPending {
		wf.Status = models.WorkflowRunning
	}
	o.mu.Unlock()

	o.emit(Event{Type: EventWorkflowStarted, WorkflowID: id, Timestamp: o.clock.Now()})

	for {
		if o.workflowCancelled(id) {
			break
		}

		ready, allTerminal, err := o.readySet(wf)
		if err != nil {
			o.finishWorkflow(id, models.WorkflowFailed)
			return o.GetWorkflow(id), fmt.Errorf("compute ready set: %w", err)
		}

		if len(ready) == 0 {
			if allTerminal {
				break
			}
			if o.workflowCancelled(id) {
				break
			}
			// Latent bug guard: the creation-time cycle check should make
			// this unreachable.
			o.log.Error("workflow stuck", zap.String("workflow_id", id))
			o.finishWorkflow(id, models.WorkflowFailed)
			o.emit(Event{Type: EventWorkflowFailed, WorkflowID: id, Err: ErrWorkflowStuck, Timestamp: o.clock.Now()})
			return o.GetWorkflow(id), ErrWorkflowStuck
		}

		// Dispatch the whole wave in parallel and wait for it to settle
		// before recomputing the ready set.
		var wg sync.WaitGroup
		for _, taskID := range ready {
			wg.Add(1)
			go func(taskID string) {
				defer wg.Done()
				o.dispatch(ctx, wf, taskID)
			}(taskID)
		}
		wg.Wait()
	}

	return o.aggregate(id)
}

// readySet returns the ids of pending tasks whose every prerequisite is
// completed or failed, plus whether every task is already terminal.
func (o *Orchestrator) readySet(wf *models.Workflow) ([]string, bool, error) {
	statuses := make(map[string]models.TaskStatus, len(wf.TaskIDs))
	for _, id := range wf.TaskIDs {
		task, err := o.engine.Get(id)
		if err != nil {
			return nil, false, err
		}
		if task == nil {
			return nil, false, fmt.Errorf("workflow task vanished: %s", id)
		}
		statuses[id] = task.Status
	}

	allTerminal := true
	var ready []string
	for _, id := range wf.TaskIDs {
		if !statuses[id].Terminal() {
			allTerminal = false
		}
		if statuses[id] != models.TaskStatusPending {
			continue
		}
		settled := true
		for _, prereq := range wf.Prerequisites[id] {
			if statuses[prereq] != models.TaskStatusCompleted && statuses[prereq] != models.TaskStatusFailed {
				settled = false
				break
			}
		}
		if settled {
			ready = append(ready, id)
		}
	}
	return ready, allTerminal, nil
}

// dispatch runs one task: planning -> running, assemble the input from
// completed prerequisites, hand it to the spawn collaborator, and settle
// the task. Everything thrown by the collaborator lands as a task-level
// failure, never as a loop error.
func (o *Orchestrator) dispatch(ctx context.Context, wf *models.Workflow, taskID string) {
	defer func() {
		if r := recover(); r != nil {
			o.failTask(wf.ID, taskID, fmt.Sprintf("panic during dispatch: %v", r))
		}
	}()

	task, err := o.engine.Get(taskID)
	if err != nil || task == nil {
		return
	}

	if _, err := o.engine.UpdateStatus(taskID, models.TaskStatusPlanning); err != nil {
		// Lost a race, usually to cancellation.
		return
	}
	if _, err := o.engine.UpdateStatus(taskID, models.TaskStatusRunning); err != nil {
		return
	}

	o.emit(Event{Type: EventTaskStarted, WorkflowID: wf.ID, TaskID: taskID, Message: task.Description, Timestamp: o.clock.Now()})

	input := o.assembleInput(wf, taskID, task.Description)
	result, err := o.spawner.Spawn(ctx, spawn.Request{
		Task:    input,
		Label:   task.Description,
		AgentID: task.Role,
	})
	if err != nil {
		o.failTask(wf.ID, taskID, err.Error())
		return
	}
	if !result.Accepted() {
		message := result.Error
		if message == "" {
			message = "subagent rejected task"
		}
		o.failTask(wf.ID, taskID, message)
		return
	}

	if result.ChildSessionKey != "" {
		if err := o.engine.SetMetadata(taskID, childSessionMetaKey, result.ChildSessionKey); err != nil {
			o.log.Debug("set child session", zap.String("task_id", taskID), zap.Error(err))
		}
	}
	if err := o.engine.SetOutput(taskID, fmt.Sprintf("completed by subagent %s", result.ChildSessionKey)); err != nil {
		return
	}
	if _, err := o.engine.UpdateStatus(taskID, models.TaskStatusCompleted); err != nil {
		return
	}

	o.emit(Event{Type: EventTaskCompleted, WorkflowID: wf.ID, TaskID: taskID, Timestamp: o.clock.Now()})
}

// assembleInput concatenates the task description with every completed
// prerequisite's output, each prefixed by a separator.
func (o *Orchestrator) assembleInput(wf *models.Workflow, taskID, description string) string {
	var b strings.Builder
	b.WriteString(description)
	for _, prereq := range wf.Prerequisites[taskID] {
		task, err := o.engine.Get(prereq)
		if err != nil || task == nil {
			continue
		}
		if task.Status == models.TaskStatusCompleted && task.Output != "" {
			b.WriteString(outputSeparator)
			b.WriteString(task.Output)
		}
	}
	return b.String()
}

// failTask records a task-level failure and emits the event.
func (o *Orchestrator) failTask(workflowID, taskID, message string) {
	if err := o.engine.SetError(taskID, message); err != nil {
		o.log.Debug("fail task", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	o.emit(Event{Type: EventTaskFailed, WorkflowID: workflowID, TaskID: taskID, Message: message, Timestamp: o.clock.Now()})
}

// aggregate settles the workflow's terminal status from its tasks: any
// failed task fails the workflow, otherwise it completes.
func (o *Orchestrator) aggregate(id string) (*models.Workflow, error) {
	o.mu.Lock()
	wf := o.workflows[id]
	if wf == nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if wf.Status == models.WorkflowCancelled {
		o.mu.Unlock()
		return o.GetWorkflow(id), nil
	}
	taskIDs := append([]string(nil), wf.TaskIDs...)
	o.mu.Unlock()

	status := models.WorkflowCompleted
	for _, taskID := range taskIDs {
		task, err := o.engine.Get(taskID)
		if err != nil {
			status = models.WorkflowFailed
			break
		}
		if task != nil && task.Status == models.TaskStatusFailed {
			status = models.WorkflowFailed
			break
		}
	}

	o.finishWorkflow(id, status)
	eventType := EventWorkflowCompleted
	if status == models.WorkflowFailed {
		eventType = EventWorkflowFailed
	}
	o.emit(Event{Type: eventType, WorkflowID: id, Timestamp: o.clock.Now()})
	return o.GetWorkflow(id), nil
}

// CancelWorkflow marks the workflow cancelled and cancels every
// non-terminal task it owns. A task currently inside dispatch is not
// preempted; it settles as usual and the cancellation stands in the record.
func (o *Orchestrator) CancelWorkflow(id string) error {
	o.mu.Lock()
	wf, ok := o.workflows[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if !wf.Status.Terminal() {
		wf.Status = models.WorkflowCancelled
		completed := o.clock.Now()
		wf.CompletedAt = &completed
	}
	taskIDs := append([]string(nil), wf.TaskIDs...)
	o.mu.Unlock()

	for _, taskID := range taskIDs {
		if _, err := o.engine.Cancel(taskID); err != nil {
			o.log.Debug("cancel workflow task", zap.String("task_id", taskID), zap.Error(err))
		}
	}

	o.emit(Event{Type: EventWorkflowCancelled, WorkflowID: id, Timestamp: o.clock.Now()})
	return nil
}

// workflowCancelled reports whether the workflow is cancelled.
func (o *Orchestrator) workflowCancelled(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	wf := o.workflows[id]
	return wf != nil && wf.Status == models.WorkflowCancelled
}

// finishWorkflow records a terminal workflow status.
func (o *Orchestrator) finishWorkflow(id string, status models.WorkflowStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf := o.workflows[id]
	if wf == nil || wf.Status.Terminal() {
		return
	}
	wf.Status = status
	completed := o.clock.Now()
	wf.CompletedAt = &completed
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	if wf == nil {
		return nil
	}
	cp := *wf
	cp.Steps = append([]models.Step(nil), wf.Steps...)
	cp.TaskIDs = append([]string(nil), wf.TaskIDs...)
	cp.Prerequisites = cloneEdges(wf.Prerequisites)
	cp.Dependents = cloneEdges(wf.Dependents)
	if wf.CompletedAt != nil {
		completed := *wf.CompletedAt
		cp.CompletedAt = &completed
	}
	return &cp
}

func cloneEdges(edges map[string][]string) map[string][]string {
	out := make(map[string][]string, len(edges))
	for k, v := range edges {
		out[k] = append([]string(nil), v...)
	}
	return out
}
