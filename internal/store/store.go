// Package store provides persistence for task records and their event
// journals. The default backend is in-memory; a SQLite backend satisfies
// the same contract for durable deployments.
package store

import (
	"errors"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// ErrStorageUnavailable indicates the backend could not complete an
// operation. Callers never partially observe a failed save.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Filter narrows the result of List. Zero-value fields are ignored; when
// both are set the filter is a conjunction.
type Filter struct {
	// Status matches tasks with this exact status.
	Status models.TaskStatus
	// SessionID matches tasks scoped to this session.
	SessionID string
}

// Matches reports whether a task satisfies the filter.
func (f Filter) Matches(t *models.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.SessionID != "" && t.SessionID != f.SessionID {
		return false
	}
	return true
}

// TaskStore persists task records and their append-only event journals.
// Load returns nil (not an error) for a missing id. All reads return deep
// copies: mutating a result never mutates stored state.
type TaskStore interface {
	// Save stores a task record, replacing any existing record with the
	// same id.
	Save(t *models.Task) error
	// Load returns the task with the given id, or nil if absent.
	Load(id string) (*models.Task, error)
	// List returns tasks matching the filter in unspecified order.
	List(f Filter) ([]*models.Task, error)
	// Delete removes the task record and its event journal atomically.
	Delete(id string) error
	// SaveEvent appends an event to a task's journal.
	SaveEvent(e *models.TaskEvent) error
	// GetEvents returns a task's events in insertion order.
	GetEvents(taskID string) ([]*models.TaskEvent, error)
	// Close releases backend resources.
	Close() error
}
