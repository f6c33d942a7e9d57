package security

import (
	"sync"
	"time"

	"github.com/ShayCichocki/convoy/internal/ids"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// AuditFilter narrows an audit query. Zero-value fields are ignored; set
// fields combine as a conjunction.
type AuditFilter struct {
	// UserID matches entries for this user.
	UserID string
	// Action matches entries with this exact action name.
	Action string
	// Since matches entries at or after this instant.
	Since time.Time
}

// AuditLog is an append-only, in-memory audit store with a monotonic
// counter. Entries are never updated or removed.
type AuditLog struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
	counter uint64
	gen     ids.Generator
	clock   ids.Clock
}

// NewAuditLog creates an empty audit log.
func NewAuditLog(gen ids.Generator, clock ids.Clock) *AuditLog {
	return &AuditLog{gen: gen, clock: clock}
}

// Append stores an entry, assigning id and timestamp if unset.
func (l *AuditLog) Append(entry models.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	if entry.ID == "" {
		entry.ID = l.gen.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock.Now()
	}
	l.entries = append(l.entries, entry)
}

// Query returns entries matching the filter in append order.
func (l *AuditLog) Query(f AuditFilter) []models.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.AuditEntry
	for _, entry := range l.entries {
		if f.UserID != "" && entry.UserID != f.UserID {
			continue
		}
		if f.Action != "" && entry.Action != f.Action {
			continue
		}
		if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Size returns the number of entries appended so far.
func (l *AuditLog) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
