package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/internal/engine"
	"github.com/ShayCichocki/convoy/internal/roles"
	"github.com/ShayCichocki/convoy/internal/spawn"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// outputAccepted is the success sentinel recorded when the spawn
// collaborator takes a task.
const outputAccepted = "subagent accepted task"

// LocalAdapter executes tasks in-process: it drives the task engine
// through the lifecycle and hands the work to the subagent-spawn
// collaborator on a background worker.
type LocalAdapter struct {
	engine  *engine.Engine
	spawner spawn.Spawner
	roles   *roles.Registry
	skills  []SkillInfo
	log     *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// LocalOption configures a LocalAdapter.
type LocalOption func(*LocalAdapter)

// WithSkills sets the skills the adapter advertises.
func WithSkills(skills []SkillInfo) LocalOption {
	return func(a *LocalAdapter) { a.skills = skills }
}

// WithLocalLogger sets the logger.
func WithLocalLogger(l *zap.Logger) LocalOption {
	return func(a *LocalAdapter) { a.log = l }
}

// NewLocalAdapter creates a local transport over the given engine,
// spawn collaborator, and role registry.
func NewLocalAdapter(eng *engine.Engine, spawner spawn.Spawner, registry *roles.Registry, opts ...LocalOption) *LocalAdapter {
	a := &LocalAdapter{
		engine:  eng,
		spawner: spawner,
		roles:   registry,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SubmitTask creates a pending task and schedules execution on a
// background worker. The returned state is always the pending snapshot
// taken before the worker starts; the worker may already have advanced the
// task by the time SubmitTask returns.
func (a *LocalAdapter) SubmitTask(ctx context.Context, req Request) (*TaskState, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: adapter closed", ErrTransportUnavailable)
	}
	a.mu.Unlock()

	task, err := a.engine.CreateTask(engine.CreateRequest{
		Description: req.Prompt,
		Role:        req.AgentType,
		SessionID:   req.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.execute(context.WithoutCancel(ctx), task.ID, req)
	}()

	return StateFromTask(task), nil
}

// execute drives one task through the lifecycle. A cancellation that lands
// between transitions surfaces as ErrInvalidTransition from the engine and
// stops the run quietly; work already handed to the collaborator is not
// recalled.
func (a *LocalAdapter) execute(ctx context.Context, taskID string, req Request) {
	if _, err := a.engine.UpdateStatus(taskID, models.TaskStatusPlanning); err != nil {
		a.abandoned(taskID, err)
		return
	}
	if _, err := a.engine.UpdateStatus(taskID, models.TaskStatusRunning); err != nil {
		a.abandoned(taskID, err)
		return
	}

	result, err := a.spawner.Spawn(ctx, spawn.Request{
		Task:    joinPromptContext(req.Prompt, req.Context),
		Label:   req.Prompt,
		AgentID: req.AgentType,
	})
	if err != nil {
		if setErr := a.engine.SetError(taskID, err.Error()); setErr != nil {
			a.abandoned(taskID, setErr)
		}
		return
	}

	if !result.Accepted() {
		message := result.Error
		if message == "" {
			message = "subagent rejected task"
		}
		if setErr := a.engine.SetError(taskID, message); setErr != nil {
			a.abandoned(taskID, setErr)
		}
		return
	}

	if err := a.engine.SetOutput(taskID, outputAccepted); err != nil {
		a.abandoned(taskID, err)
		return
	}
	if _, err := a.engine.UpdateStatus(taskID, models.TaskStatusCompleted); err != nil {
		a.abandoned(taskID, err)
	}
}

// abandoned logs an execution step that lost its race, usually to a
// cancellation observed between transitions.
func (a *LocalAdapter) abandoned(taskID string, err error) {
	if errors.Is(err, engine.ErrInvalidTransition) || errors.Is(err, engine.ErrTerminalImmutable) {
		a.log.Debug("task execution stopped", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	a.log.Warn("task execution error", zap.String("task_id", taskID), zap.Error(err))
}

// StreamTaskUpdates forwards the engine's native stream.
func (a *LocalAdapter) StreamTaskUpdates(ctx context.Context, id string) (<-chan StreamUpdate, error) {
	updates, err := a.engine.StreamUpdates(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamUpdate)
	go func() {
		defer close(out)
		for u := range updates {
			select {
			case out <- StreamUpdate{State: *StateFromTask(u.Task)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// QueryTaskState returns the task's current state, or nil if unknown.
func (a *LocalAdapter) QueryTaskState(ctx context.Context, id string) (*TaskState, error) {
	task, err := a.engine.Get(id)
	if err != nil {
		return nil, err
	}
	return StateFromTask(task), nil
}

// CancelTask forwards to the engine. A subagent already spawned is not
// forcibly terminated; the collaborator retains control of issued work.
func (a *LocalAdapter) CancelTask(ctx context.Context, id string) (bool, error) {
	return a.engine.Cancel(id)
}

// ListAgents enumerates the registered agent roles.
func (a *LocalAdapter) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	var out []AgentInfo
	for _, role := range a.roles.All() {
		out = append(out, AgentInfo{
			ID:          role.Name,
			Name:        role.Name,
			Description: role.Description,
		})
	}
	return out, nil
}

// ListSkills enumerates the adapter's configured skills.
func (a *LocalAdapter) ListSkills(ctx context.Context) ([]SkillInfo, error) {
	return a.skills, nil
}

// Close waits for in-flight workers and rejects further submissions.
func (a *LocalAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
	return nil
}

func joinPromptContext(prompt, extra string) string {
	if extra == "" {
		return prompt
	}
	return prompt + "\n\n" + extra
}

// Compile-time verification that LocalAdapter implements Adapter.
var _ Adapter = (*LocalAdapter)(nil)
