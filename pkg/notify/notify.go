// Package notify derives user-facing alerts from workspace events and
// tracks their read/unread state.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is a single user-facing alert.
type Notification struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	SourceUserID string    `json:"sourceUserId,omitempty"`
	Read         bool      `json:"read"`
	Priority     Priority  `json:"priority"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Dispatcher holds notifications newest first.
type Dispatcher struct {
	mu    sync.RWMutex
	items []Notification
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Push prepends a notification, assigning id, priority and timestamp when
// missing, and returns the stored record.
func (d *Dispatcher) Push(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append([]Notification{n}, d.items...)
	return n
}

// MarkRead flags one notification as read.
func (d *Dispatcher) MarkRead(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.items {
		if d.items[i].ID == id {
			d.items[i].Read = true
			return true
		}
	}
	return false
}

// ClearAll drops every notification.
func (d *Dispatcher) ClearAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = nil
}

// UnreadCount is always computed from the list, never stored.
func (d *Dispatcher) UnreadCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	for _, n := range d.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// List returns a copy of all notifications, newest first.
func (d *Dispatcher) List() []Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Notification, len(d.items))
	copy(out, d.items)
	return out
}
