package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// SQLiteStore is a durable TaskStore backed by SQLite. It satisfies the
// same contract as MemoryStore so the two can be swapped transparently.
type SQLiteStore struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLite opens (creating if needed) a SQLite task store at the given
// path. WAL mode is enabled for concurrent reads.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

const schemaTasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	description TEXT NOT NULL,
	role TEXT,
	session_id TEXT,
	parent_id TEXT,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT,
	output TEXT,
	error TEXT,
	progress INTEGER NOT NULL DEFAULT 0,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_session_id ON tasks(session_id);
`

const schemaEvents = `
CREATE TABLE IF NOT EXISTS task_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	old_status TEXT,
	new_status TEXT,
	data TEXT
);

CREATE INDEX IF NOT EXISTS idx_task_events_task_id ON task_events(task_id);
`

// migrate applies the schema. The statements are idempotent.
func (s *SQLiteStore) migrate() error {
	for _, stmt := range []string{schemaTasks, schemaEvents} {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Save stores a task record, replacing any existing record with the same id.
func (s *SQLiteStore) Save(t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadata []byte
	if len(t.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := s.conn.Exec(`
		INSERT OR REPLACE INTO tasks
		(id, status, description, role, session_id, parent_id, created_at, started_at, completed_at, output, error, progress, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Status), t.Description, t.Role, t.SessionID, t.ParentID,
		formatTime(t.CreatedAt), formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt),
		t.Output, t.Error, t.Progress, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("%w: save task %s: %v", ErrStorageUnavailable, t.ID, err)
	}
	return nil
}

// Load returns the task with the given id, or nil if absent.
func (s *SQLiteStore) Load(id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRow(`
		SELECT id, status, description, role, session_id, parent_id, created_at, started_at, completed_at, output, error, progress, metadata
		FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load task %s: %v", ErrStorageUnavailable, id, err)
	}
	return t, nil
}

// List returns tasks matching the filter.
func (s *SQLiteStore) List(f Filter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, status, description, role, session_id, parent_id, created_at, started_at, completed_at, output, error, progress, metadata FROM tasks`
	var args []any
	var where []string
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", ErrStorageUnavailable, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes the task record and its journal in one transaction.
func (s *SQLiteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", ErrStorageUnavailable, err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: delete task %s: %v", ErrStorageUnavailable, id, err)
	}
	if _, err := tx.Exec(`DELETE FROM task_events WHERE task_id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: delete events %s: %v", ErrStorageUnavailable, id, err)
	}
	return tx.Commit()
}

// SaveEvent appends an event to the journal.
func (s *SQLiteStore) SaveEvent(e *models.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO task_events (task_id, kind, timestamp, old_status, new_status, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.TaskID, string(e.Kind), formatTime(e.Timestamp),
		string(e.OldStatus), string(e.NewStatus), e.Data,
	)
	if err != nil {
		return fmt.Errorf("%w: save event for %s: %v", ErrStorageUnavailable, e.TaskID, err)
	}
	return nil
}

// GetEvents returns events in insertion order.
func (s *SQLiteStore) GetEvents(taskID string) ([]*models.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT task_id, kind, timestamp, old_status, new_status, data
		FROM task_events WHERE task_id = ? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: get events for %s: %v", ErrStorageUnavailable, taskID, err)
	}
	defer rows.Close()

	var out []*models.TaskEvent
	for rows.Next() {
		var e models.TaskEvent
		var kind, ts, oldStatus, newStatus string
		if err := rows.Scan(&e.TaskID, &kind, &ts, &oldStatus, &newStatus, &e.Data); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrStorageUnavailable, err)
		}
		e.Kind = models.EventKind(kind)
		e.OldStatus = models.TaskStatus(oldStatus)
		e.NewStatus = models.TaskStatus(newStatus)
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("%w: parse event time: %v", ErrStorageUnavailable, err)
		}
		e.Timestamp = t
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var status, createdAt string
	var startedAt, completedAt, metadata sql.NullString
	if err := row.Scan(&t.ID, &status, &t.Description, &t.Role, &t.SessionID, &t.ParentID,
		&createdAt, &startedAt, &completedAt, &t.Output, &t.Error, &t.Progress, &metadata); err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = created
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// formatNullableTime formats an optional time for SQLite storage.
func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// Compile-time verification that SQLiteStore implements TaskStore.
var _ TaskStore = (*SQLiteStore)(nil)
