package store

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// storeFactories builds every TaskStore backend so the contract tests run
// against all of them.
func storeFactories(t *testing.T) map[string]func(t *testing.T) TaskStore {
	return map[string]func(t *testing.T) TaskStore{
		"memory": func(t *testing.T) TaskStore {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) TaskStore {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "tasks.db"))
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			return s
		},
	}
}

func newTask(id string, status models.TaskStatus) *models.Task {
	return &models.Task{
		ID:          id,
		Status:      status,
		Description: "task " + id,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			started := time.Now().UTC()
			task := newTask("task-1", models.TaskStatusRunning)
			task.Role = "code-creator"
			task.SessionID = "sess-1"
			task.StartedAt = &started
			task.Progress = 42
			task.Metadata = map[string]string{"origin": "test"}

			if err := s.Save(task); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := s.Load("task-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got == nil {
				t.Fatal("expected task, got nil")
			}
			if got.ID != task.ID || got.Status != task.Status || got.Role != task.Role {
				t.Errorf("loaded task differs: %+v", got)
			}
			if got.Progress != 42 {
				t.Errorf("expected progress 42, got %d", got.Progress)
			}
			if got.StartedAt == nil || !got.StartedAt.Equal(started) {
				t.Errorf("expected startedAt %v, got %v", started, got.StartedAt)
			}
			if got.Metadata["origin"] != "test" {
				t.Errorf("expected metadata round trip, got %v", got.Metadata)
			}
		})
	}
}

func TestStoreLoadMissingReturnsNil(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			got, err := s.Load("no-such-task")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got != nil {
				t.Errorf("expected nil for missing task, got %+v", got)
			}
		})
	}
}

func TestStoreLoadReturnsDeepCopy(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			task := newTask("task-1", models.TaskStatusPending)
			task.Metadata = map[string]string{"key": "original"}
			if err := s.Save(task); err != nil {
				t.Fatalf("save: %v", err)
			}

			first, _ := s.Load("task-1")
			first.Metadata["key"] = "mutated"
			first.Status = models.TaskStatusFailed

			second, _ := s.Load("task-1")
			if second.Metadata["key"] != "original" {
				t.Error("mutation of loaded task leaked into store")
			}
			if second.Status != models.TaskStatusPending {
				t.Error("status mutation leaked into store")
			}
		})
	}
}

func TestStoreListFilters(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			a := newTask("a", models.TaskStatusRunning)
			a.SessionID = "sess-1"
			b := newTask("b", models.TaskStatusRunning)
			b.SessionID = "sess-2"
			c := newTask("c", models.TaskStatusCompleted)
			c.SessionID = "sess-1"
			for _, task := range []*models.Task{a, b, c} {
				if err := s.Save(task); err != nil {
					t.Fatalf("save: %v", err)
				}
			}

			all, err := s.List(Filter{})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 {
				t.Errorf("expected 3 tasks, got %d", len(all))
			}

			running, _ := s.List(Filter{Status: models.TaskStatusRunning})
			if len(running) != 2 {
				t.Errorf("expected 2 running tasks, got %d", len(running))
			}

			// Conjunction of both filter fields.
			both, _ := s.List(Filter{Status: models.TaskStatusRunning, SessionID: "sess-1"})
			if len(both) != 1 || both[0].ID != "a" {
				t.Errorf("expected only task a, got %v", ids(both))
			}
		})
	}
}

func TestStoreDeleteRemovesTaskAndJournal(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			task := newTask("task-1", models.TaskStatusPending)
			if err := s.Save(task); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := s.SaveEvent(&models.TaskEvent{TaskID: "task-1", Kind: models.EventCreated, Timestamp: time.Now()}); err != nil {
				t.Fatalf("save event: %v", err)
			}

			if err := s.Delete("task-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}

			got, _ := s.Load("task-1")
			if got != nil {
				t.Error("expected task gone after delete")
			}
			events, _ := s.GetEvents("task-1")
			if len(events) != 0 {
				t.Errorf("expected journal gone after delete, got %d events", len(events))
			}
		})
	}
}

func TestStoreEventsInsertionOrder(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			base := time.Now().UTC()
			kinds := []models.EventKind{
				models.EventCreated,
				models.EventStatusChanged,
				models.EventProgressUpdated,
				models.EventOutputAdded,
			}
			for i, kind := range kinds {
				e := &models.TaskEvent{
					TaskID:    "task-1",
					Kind:      kind,
					Timestamp: base.Add(time.Duration(i) * time.Millisecond),
				}
				if err := s.SaveEvent(e); err != nil {
					t.Fatalf("save event: %v", err)
				}
			}

			events, err := s.GetEvents("task-1")
			if err != nil {
				t.Fatalf("get events: %v", err)
			}
			if len(events) != len(kinds) {
				t.Fatalf("expected %d events, got %d", len(kinds), len(events))
			}
			for i, e := range events {
				if e.Kind != kinds[i] {
					t.Errorf("event %d: expected %s, got %s", i, kinds[i], e.Kind)
				}
			}
			for i := 1; i < len(events); i++ {
				if events[i].Timestamp.Before(events[i-1].Timestamp) {
					t.Error("event timestamps must be non-decreasing")
				}
			}
		})
	}
}

func ids(tasks []*models.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	sort.Strings(out)
	return out
}
