// Package runtime is the single front door over a transport adapter. It
// routes adapter operations, counts totals, and reports health.
package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/internal/store"
	"github.com/ShayCichocki/convoy/internal/transport"
	"github.com/ShayCichocki/convoy/internal/version"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// Mode tags the deployment shape of the runtime.
type Mode string

const (
	// ModeLocalOnly executes everything in-process.
	ModeLocalOnly Mode = "local-only"
	// ModeRemoteEnabled executes on a remote node.
	ModeRemoteEnabled Mode = "remote-enabled"
	// ModeDistributedCluster executes across a cluster of nodes.
	ModeDistributedCluster Mode = "distributed-cluster"
)

// Status is the runtime health report.
type Status struct {
	// Version is the convoy build version.
	Version string `json:"version"`
	// UptimeSeconds is how long the runtime has been up.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// ActiveTasks counts tasks currently running.
	ActiveTasks int `json:"active_tasks"`
	// TotalTasks counts tasks submitted through this runtime.
	TotalTasks int64 `json:"total_tasks"`
	// Mode is the deployment mode tag.
	Mode Mode `json:"mode"`
	// Healthy reports overall runtime health.
	Healthy bool `json:"healthy"`
}

// Runtime wraps one transport adapter.
type Runtime struct {
	adapter   transport.Adapter
	tasks     store.TaskStore
	mode      Mode
	startedAt time.Time
	total     atomic.Int64
	log       *zap.Logger
}

// New creates a Runtime over an adapter. The store is consulted for the
// active-task count in GetStatus.
func New(adapter transport.Adapter, tasks store.TaskStore, mode Mode, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		adapter:   adapter,
		tasks:     tasks,
		mode:      mode,
		startedAt: time.Now(),
		log:       log,
	}
}

// SubmitTask delegates to the adapter and increments the total counter.
func (r *Runtime) SubmitTask(ctx context.Context, req transport.Request) (*transport.TaskState, error) {
	state, err := r.adapter.SubmitTask(ctx, req)
	if err != nil {
		return nil, err
	}
	r.total.Add(1)
	r.log.Info("task submitted",
		zap.String("task_id", state.ID),
		zap.String("agent_type", req.AgentType))
	return state, nil
}

// StreamTaskUpdates delegates to the adapter.
func (r *Runtime) StreamTaskUpdates(ctx context.Context, id string) (<-chan transport.StreamUpdate, error) {
	return r.adapter.StreamTaskUpdates(ctx, id)
}

// QueryTaskState delegates to the adapter; nil means unknown.
func (r *Runtime) QueryTaskState(ctx context.Context, id string) (*transport.TaskState, error) {
	return r.adapter.QueryTaskState(ctx, id)
}

// CancelTask delegates to the adapter.
func (r *Runtime) CancelTask(ctx context.Context, id string) (bool, error) {
	return r.adapter.CancelTask(ctx, id)
}

// ListAgents delegates to the adapter.
func (r *Runtime) ListAgents(ctx context.Context) ([]transport.AgentInfo, error) {
	return r.adapter.ListAgents(ctx)
}

// ListSkills delegates to the adapter.
func (r *Runtime) ListSkills(ctx context.Context) ([]transport.SkillInfo, error) {
	return r.adapter.ListSkills(ctx)
}

// GetStatus reports version, uptime, task counters, mode, and health.
func (r *Runtime) GetStatus() Status {
	active := 0
	healthy := true
	running, err := r.tasks.List(store.Filter{Status: models.TaskStatusRunning})
	if err != nil {
		healthy = false
	} else {
		active = len(running)
	}

	return Status{
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		ActiveTasks:   active,
		TotalTasks:    r.total.Load(),
		Mode:          r.mode,
		Healthy:       healthy,
	}
}

// Close closes the adapter.
func (r *Runtime) Close() error {
	return r.adapter.Close()
}
