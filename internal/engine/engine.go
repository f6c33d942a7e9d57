// Package engine implements the task lifecycle state machine. Every state
// change is validated against the transition table, journaled as an event,
// and fanned out to subscribers. The engine owns no task storage itself;
// it drives a store.TaskStore.
package engine

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/internal/ids"
	"github.com/ShayCichocki/convoy/internal/store"
	"github.com/ShayCichocki/convoy/pkg/models"
)

var (
	// ErrInvalidTransition indicates a state change that violates the
	// transition table. The task is left unchanged.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrTerminalImmutable indicates a mutation attempted on a task that
	// already reached a terminal status.
	ErrTerminalImmutable = errors.New("task is terminal and immutable")
	// ErrTaskNotFound indicates a mutation addressed to an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
)

// CreateRequest carries the attributes of a new task.
type CreateRequest struct {
	// Description is the human-readable description of the work.
	Description string
	// Role is the agent role tag, if any.
	Role string
	// SessionID scopes the task to a session, if any.
	SessionID string
	// ParentID links to a parent task, if any.
	ParentID string
	// Metadata holds free-form annotations.
	Metadata map[string]string
}

// Engine is the task state machine. All mutations are serialized by a
// single mutex so subscribers observe events in journal order.
type Engine struct {
	store store.TaskStore
	gen   ids.Generator
	clock ids.Clock
	log   *zap.Logger

	mu      sync.Mutex
	subs    map[string]map[int]func(models.TaskEvent)
	nextSub int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(g ids.Generator) Option {
	return func(e *Engine) { e.gen = g }
}

// WithClock overrides the clock.
func WithClock(c ids.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine over the given store.
func New(s store.TaskStore, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		gen:   ids.UUIDGenerator{},
		clock: &ids.SystemClock{},
		log:   zap.NewNop(),
		subs:  make(map[string]map[int]func(models.TaskEvent)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTask creates a pending task and journals its created event.
func (e *Engine) CreateTask(req CreateRequest) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	task := &models.Task{
		ID:          e.gen.NewID(),
		Status:      models.TaskStatusPending,
		Description: req.Description,
		Role:        req.Role,
		SessionID:   req.SessionID,
		ParentID:    req.ParentID,
		CreatedAt:   now,
		Metadata:    req.Metadata,
	}

	if err := e.store.Save(task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	e.journalLocked(models.TaskEvent{
		TaskID:    task.ID,
		Kind:      models.EventCreated,
		Timestamp: now,
		NewStatus: models.TaskStatusPending,
	})

	e.log.Debug("task created", zap.String("task_id", task.ID), zap.String("role", task.Role))
	return task.Clone(), nil
}

// Get returns the task with the given id, or nil if absent.
func (e *Engine) Get(id string) (*models.Task, error) {
	return e.store.Load(id)
}

// List returns tasks matching the filter.
func (e *Engine) List(f store.Filter) ([]*models.Task, error) {
	return e.store.List(f)
}

// Events returns a task's journal in insertion order.
func (e *Engine) Events(id string) ([]*models.TaskEvent, error) {
	return e.store.GetEvents(id)
}

// UpdateStatus moves a task through a legal transition and applies the
// transition's side effects: entering planning or running sets startedAt
// if still unset, entering any terminal state sets completedAt.
func (e *Engine) UpdateStatus(id string, to models.TaskStatus) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateStatusLocked(id, to)
}

func (e *Engine) updateStatusLocked(id string, to models.TaskStatus) (*models.Task, error) {
	task, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !models.CanTransition(task.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, to)
	}

	now := e.clock.Now()
	from := task.Status
	task.Status = to

	switch to {
	case models.TaskStatusPlanning, models.TaskStatusRunning:
		if task.StartedAt == nil {
			started := now
			task.StartedAt = &started
		}
	}
	if to.Terminal() {
		completed := now
		task.CompletedAt = &completed
	}

	if err := e.store.Save(task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	e.journalLocked(models.TaskEvent{
		TaskID:    id,
		Kind:      models.EventStatusChanged,
		Timestamp: now,
		OldStatus: from,
		NewStatus: to,
	})

	e.log.Debug("task transitioned",
		zap.String("task_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return task.Clone(), nil
}

// UpdateProgress clamps the value to [0,100] and stores it. Rejected on
// terminal tasks. A journal event is appended only when the clamped value
// actually differs from the stored one.
func (e *Engine) UpdateProgress(id string, progress int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Load(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalImmutable, id)
	}

	clamped := models.ClampProgress(progress)
	if clamped == task.Progress {
		return nil
	}
	task.Progress = clamped

	if err := e.store.Save(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	e.journalLocked(models.TaskEvent{
		TaskID:    id,
		Kind:      models.EventProgressUpdated,
		Timestamp: e.clock.Now(),
		NewStatus: task.Status,
		Data:      strconv.Itoa(clamped),
	})
	return nil
}

// SetOutput overwrites the task's output string. Rejected on terminal tasks.
func (e *Engine) SetOutput(id, output string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Load(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalImmutable, id)
	}

	task.Output = output
	if err := e.store.Save(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	e.journalLocked(models.TaskEvent{
		TaskID:    id,
		Kind:      models.EventOutputAdded,
		Timestamp: e.clock.Now(),
		NewStatus: task.Status,
		Data:      output,
	})
	return nil
}

// SetMetadata records a metadata key on the task. Metadata changes are
// not journal events. Rejected on terminal tasks.
func (e *Engine) SetMetadata(id, key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Load(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalImmutable, id)
	}

	if task.Metadata == nil {
		task.Metadata = make(map[string]string)
	}
	task.Metadata[key] = value
	if err := e.store.Save(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// SetError atomically transitions the task to failed and records the error
// string. This is the preferred way to fail a task; a direct
// UpdateStatus(id, failed) is also legal but leaves error untouched.
func (e *Engine) SetError(id, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Load(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !models.CanTransition(task.Status, models.TaskStatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, models.TaskStatusFailed)
	}

	now := e.clock.Now()
	from := task.Status
	task.Status = models.TaskStatusFailed
	task.Error = message
	completed := now
	task.CompletedAt = &completed

	if err := e.store.Save(task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	// The atomic fail journals the error first, then the transition, so
	// the status_changed event is the journal's last word on the task.
	e.journalLocked(models.TaskEvent{
		TaskID:    id,
		Kind:      models.EventErrorSet,
		Timestamp: now,
		NewStatus: from,
		Data:      message,
	})
	e.journalLocked(models.TaskEvent{
		TaskID:    id,
		Kind:      models.EventStatusChanged,
		Timestamp: now,
		OldStatus: from,
		NewStatus: models.TaskStatusFailed,
	})

	e.log.Debug("task failed", zap.String("task_id", id), zap.String("error", message))
	return nil
}

// Cancel transitions a non-terminal task to cancelled. On a terminal task
// it returns false and journals nothing. Cancellation is non-preemptive:
// transports honor it at their next observation point.
func (e *Engine) Cancel(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.Load(id)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status.Terminal() {
		return false, nil
	}

	if _, err := e.updateStatusLocked(id, models.TaskStatusCancelled); err != nil {
		return false, err
	}
	return true, nil
}

// journalLocked appends an event and notifies subscribers synchronously,
// in journal order. Caller must hold e.mu.
func (e *Engine) journalLocked(event models.TaskEvent) {
	if err := e.store.SaveEvent(&event); err != nil {
		e.log.Error("journal event", zap.String("task_id", event.TaskID), zap.Error(err))
	}
	for _, fn := range e.subs[event.TaskID] {
		fn(event)
	}
}
