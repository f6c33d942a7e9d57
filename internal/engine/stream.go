package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// Update is one element of a task update stream: the task snapshot after
// the change, plus the journal event that produced it. Event is nil for
// the initial snapshot.
type Update struct {
	// Task is the task state after the change.
	Task *models.Task
	// Event is the journal event behind this update, nil for the snapshot.
	Event *models.TaskEvent
}

// Subscribe registers a callback invoked synchronously for every
// subsequent journal event on the task, in journal order. The returned
// function unsubscribes; it is safe to call more than once. Callbacks run
// on the goroutine that produced the update and must not block.
func (e *Engine) Subscribe(id string, fn func(models.TaskEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscribeLocked(id, fn)
}

func (e *Engine) subscribeLocked(id string, fn func(models.TaskEvent)) func() {
	if e.subs[id] == nil {
		e.subs[id] = make(map[int]func(models.TaskEvent))
	}
	key := e.nextSub
	e.nextSub++
	e.subs[id][key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs[id], key)
			if len(e.subs[id]) == 0 {
				delete(e.subs, id)
			}
		})
	}
}

// streamQueue bridges synchronous subscriber callbacks to a lazily drained
// iterator. Buffering is unbounded so a slow stream consumer never blocks
// the notifier or other subscribers.
type streamQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Update
	closed bool
}

func newStreamQueue() *streamQueue {
	q := &streamQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *streamQueue) push(u Update) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, u)
	q.cond.Signal()
}

func (q *streamQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// pop blocks until an item is available or the queue is closed and
// drained. The second return is false when the stream is exhausted.
func (q *streamQueue) pop() (Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Update{}, false
	}
	u := q.items[0]
	q.items = q.items[1:]
	return u, true
}

// StreamUpdates returns a finite stream of task updates: the current state
// first, then one update per subsequent journal event, closing once a
// terminal state has been delivered. The snapshot and the subscription are
// installed under the same lock, so no event journaled after the snapshot
// is ever skipped.
func (e *Engine) StreamUpdates(ctx context.Context, id string) (<-chan Update, error) {
	e.mu.Lock()

	task, err := e.store.Load(id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if task == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	queue := newStreamQueue()
	queue.push(Update{Task: task})

	var unsubscribe func()
	if task.Status.Terminal() {
		// Nothing further can happen; the snapshot is the whole stream.
		queue.close()
		unsubscribe = func() {}
	} else {
		unsubscribe = e.subscribeLocked(id, func(event models.TaskEvent) {
			snapshot, err := e.store.Load(id)
			if err != nil || snapshot == nil {
				return
			}
			ev := event
			queue.push(Update{Task: snapshot, Event: &ev})
			if event.Kind == models.EventStatusChanged && event.NewStatus.Terminal() {
				queue.close()
			}
		})
	}
	e.mu.Unlock()

	// Cancellation must also wake a drain goroutine blocked in pop.
	stopAfter := context.AfterFunc(ctx, queue.close)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer unsubscribe()
		defer stopAfter()
		for {
			u, ok := queue.pop()
			if !ok {
				return
			}
			select {
			case out <- u:
			case <-ctx.Done():
				queue.close()
				return
			}
		}
	}()
	return out, nil
}
