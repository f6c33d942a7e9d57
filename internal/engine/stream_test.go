package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ShayCichocki/convoy/pkg/models"
)

func TestSubscribeDeliversEventsInOrder(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	var got []models.EventKind
	unsubscribe := e.Subscribe(task.ID, func(ev models.TaskEvent) {
		got = append(got, ev.Kind)
	})
	defer unsubscribe()

	if _, err := e.UpdateStatus(task.ID, models.TaskStatusPlanning); err != nil {
		t.Fatal(err)
	}
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateProgress(task.ID, 50); err != nil {
		t.Fatal(err)
	}
	if err := e.SetOutput(task.ID, "result"); err != nil {
		t.Fatal(err)
	}

	want := []models.EventKind{
		models.EventStatusChanged,
		models.EventStatusChanged,
		models.EventProgressUpdated,
		models.EventOutputAdded,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	// Events after unsubscribe are not delivered.
	unsubscribe()
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusCompleted); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Error("callback received events after unsubscribe")
	}
}

func TestSubscriberOrderMatchesJournal(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	var seen []models.TaskEvent
	unsubscribe := e.Subscribe(task.ID, func(ev models.TaskEvent) {
		seen = append(seen, ev)
	})
	defer unsubscribe()

	for _, status := range []models.TaskStatus{
		models.TaskStatusPlanning, models.TaskStatusRunning, models.TaskStatusCompleted,
	} {
		if _, err := e.UpdateStatus(task.ID, status); err != nil {
			t.Fatal(err)
		}
	}

	journal, _ := e.Events(task.ID)
	// The journal includes the created event that predates the subscription.
	journal = journal[1:]
	if len(seen) != len(journal) {
		t.Fatalf("subscriber saw %d events, journal has %d", len(seen), len(journal))
	}
	for i := range seen {
		if seen[i].Kind != journal[i].Kind || seen[i].NewStatus != journal[i].NewStatus {
			t.Errorf("event %d: subscriber saw %+v, journal has %+v", i, seen[i], journal[i])
		}
	}
}

func TestStreamYieldsSnapshotThenEventsUntilTerminal(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := e.StreamUpdates(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		e.UpdateStatus(task.ID, models.TaskStatusPlanning)
		e.UpdateStatus(task.ID, models.TaskStatusRunning)
		e.UpdateProgress(task.ID, 80)
		e.UpdateStatus(task.ID, models.TaskStatusCompleted)
	}()

	var updates []Update
	for u := range stream {
		updates = append(updates, u)
	}

	if len(updates) != 5 {
		t.Fatalf("expected snapshot + 4 events, got %d updates", len(updates))
	}
	if updates[0].Event != nil {
		t.Error("first update must be the snapshot")
	}
	if updates[0].Task.Status != models.TaskStatusPending {
		t.Errorf("snapshot must show the pre-stream state, got %s", updates[0].Task.Status)
	}
	last := updates[len(updates)-1]
	if last.Task.Status != models.TaskStatusCompleted {
		t.Errorf("stream must end at terminal state, got %s", last.Task.Status)
	}
}

func TestStreamOnTerminalTaskYieldsOnlySnapshot(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)
	if _, err := e.UpdateStatus(task.ID, models.TaskStatusCancelled); err != nil {
		t.Fatal(err)
	}

	stream, err := e.StreamUpdates(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}

	var updates []Update
	for u := range stream {
		updates = append(updates, u)
	}
	if len(updates) != 1 {
		t.Fatalf("expected only the snapshot, got %d updates", len(updates))
	}
	if updates[0].Task.Status != models.TaskStatusCancelled {
		t.Errorf("expected cancelled snapshot, got %s", updates[0].Task.Status)
	}
}

func TestStreamUnknownTask(t *testing.T) {
	e := newTestEngine()
	if _, err := e.StreamUpdates(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := e.StreamUpdates(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Drain the snapshot, then cancel while the task is still idle.
	<-stream
	cancel()

	select {
	case _, open := <-stream:
		if open {
			t.Error("expected stream closed after context cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after context cancel")
	}
}

func TestSlowStreamDoesNotBlockSubscribers(t *testing.T) {
	e := newTestEngine()
	task := createTask(t, e)

	// A stream nobody drains must not stall direct subscribers.
	if _, err := e.StreamUpdates(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	notified := 0
	unsubscribe := e.Subscribe(task.ID, func(models.TaskEvent) { notified++ })
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.UpdateStatus(task.ID, models.TaskStatusPlanning)
		e.UpdateStatus(task.ID, models.TaskStatusRunning)
		e.UpdateStatus(task.ID, models.TaskStatusCompleted)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine mutations blocked by an undrained stream")
	}
	if notified != 3 {
		t.Errorf("expected 3 notifications, got %d", notified)
	}
}
