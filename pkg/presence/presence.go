// Package presence tracks which users are currently associated with the
// shared workspace, what they are doing and where their pointer is.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Activity is a user's coarse activity state.
type Activity string

const (
	ActivityViewing Activity = "viewing"
	ActivityEditing Activity = "editing"
	ActivityIdle    Activity = "idle"
)

// User identifies a remote participant.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Cursor is a pointer location. ElementID names the entity the cursor is
// over; consumers filter to cursors whose ElementID matches the entity
// they are displaying.
type Cursor struct {
	ElementID string  `json:"elementId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	SelStart  int     `json:"selStart,omitempty"`
	SelEnd    int     `json:"selEnd,omitempty"`
}

// Presence is one user's live state.
type Presence struct {
	User       User      `json:"user"`
	Activity   Activity  `json:"activity"`
	Cursor     *Cursor   `json:"cursor,omitempty"`
	EditingID  string    `json:"editingId,omitempty"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// Update is a partial presence mutation. Nil fields are left untouched.
type Update struct {
	Activity  *Activity
	Cursor    *Cursor
	EditingID *string
	Name      *string
	Color     *string
}

// Tracker holds the live roster. All methods are safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*Presence

	clock func() time.Time
}

// NewTracker creates an empty roster.
func NewTracker() *Tracker {
	return &Tracker{
		users: make(map[string]*Presence),
		clock: time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (t *Tracker) SetClock(clock func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
}

// SetActiveUsers replaces the whole roster. Used on initial join, when the
// server sends the authoritative participant list.
func (t *Tracker) SetActiveUsers(users []User) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	t.users = make(map[string]*Presence, len(users))
	for _, u := range users {
		t.users[u.ID] = &Presence{User: u, Activity: ActivityViewing, LastUpdate: now}
	}
}

// Join adds a single user to the roster, replacing any previous record.
func (t *Tracker) Join(u User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[u.ID] = &Presence{User: u, Activity: ActivityViewing, LastUpdate: t.clock()}
}

// Upsert merges a partial update into an existing record. It is a no-op
// for unknown users: records must have been created by a join event first.
// Every successful upsert refreshes LastUpdate.
func (t *Tracker) Upsert(userID string, up Update) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.users[userID]
	if !ok {
		return false
	}

	if up.Activity != nil {
		p.Activity = *up.Activity
	}
	if up.Cursor != nil {
		p.Cursor = up.Cursor
	}
	if up.EditingID != nil {
		p.EditingID = *up.EditingID
	}
	if up.Name != nil {
		p.User.Name = *up.Name
	}
	if up.Color != nil {
		p.User.Color = *up.Color
	}
	p.LastUpdate = t.clock()

	return true
}

// Remove deletes a user's record.
func (t *Tracker) Remove(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// Get returns a copy of one user's presence.
func (t *Tracker) Get(userID string) (Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.users[userID]
	if !ok {
		return Presence{}, false
	}
	return *p, true
}

// List returns the roster sorted by user id.
func (t *Tracker) List() []Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Presence, 0, len(t.users))
	for _, p := range t.users {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out
}

// EditorOf reports the user currently editing the given entity, if any.
// This is advisory only: the server remains the source of truth.
func (t *Tracker) EditorOf(entityID string) (Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, p := range t.users {
		if p.Activity == ActivityEditing && p.EditingID == entityID {
			return *p, true
		}
	}
	return Presence{}, false
}

// EvictStale removes users whose presence has not been refreshed within
// maxIdle and returns their ids. The tracker defines no expiry policy of
// its own; the embedding application calls this with its chosen timeout.
func (t *Tracker) EvictStale(maxIdle time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock().Add(-maxIdle)
	var evicted []string
	for id, p := range t.users {
		if p.LastUpdate.Before(cutoff) {
			delete(t.users, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
