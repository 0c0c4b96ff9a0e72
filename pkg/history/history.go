// Package history keeps a bounded, reverse-chronological ledger of state
// transitions for audit and version-history views.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argumap/collab.go/pkg/constants"
)

// Kind classifies a change event.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is an immutable change record.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     string         `json:"userId"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Log is an append-only, size-bounded event ledger, newest first.
// Once the limit is exceeded the oldest entry is silently evicted.
type Log struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewLog creates a Log bounded to limit entries.
// A non-positive limit falls back to constants.DefaultHistoryLimit.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	return &Log{limit: limit}
}

// Append inserts the event at the head, assigning an id and timestamp when
// missing, and evicts the oldest entries beyond the limit.
func (l *Log) Append(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append([]Event{e}, l.events...)
	if len(l.events) > l.limit {
		l.events = l.events[:l.limit]
	}
	return e
}

// Filter returns events matching entityID and entityType, newest first.
// Empty arguments match everything.
func (l *Log) Filter(entityID, entityType string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if entityID != "" && e.EntityID != entityID {
			continue
		}
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// All returns a copy of the full ledger, newest first.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Clear drops every retained event.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Len reports the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
