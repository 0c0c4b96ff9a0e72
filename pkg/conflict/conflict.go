// Package conflict materializes concurrent-edit conflicts as resolvable
// records and applies a chosen resolution strategy.
//
// Conflicts are detection artifacts, not errors: the server adjudicates,
// this package records the outcome and computes what a strategy implies
// for local state.
package conflict

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argumap/collab.go/pkg/constants"
)

// Type classifies why the conflict arose.
type Type string

const (
	TypeConcurrentEdit     Type = "concurrent_edit"
	TypeVersionMismatch    Type = "version_mismatch"
	TypePermissionConflict Type = "permission_conflict"
)

// Status is the conflict lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	StrategyMerge        Strategy = "merge"
	StrategyOverwrite    Strategy = "overwrite"
	StrategyManualReview Strategy = "manual_review"
)

// Edit is one conflicting change set competing for the same entity.
type Edit struct {
	UserID    string         `json:"userId"`
	Changes   map[string]any `json:"changes"`
	Timestamp time.Time      `json:"timestamp"`
}

// Resolution is one conflict record. Once Status is resolved the record
// is immutable.
type Resolution struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	EntityID   string    `json:"entityId"`
	Users      []string  `json:"users"`
	Edits      []Edit    `json:"edits,omitempty"`
	Status     Status    `json:"status"`
	Strategy   Strategy  `json:"strategy,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	ResolvedBy string    `json:"resolvedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ResolvedAt time.Time `json:"resolvedAt,omitempty"`
}

// Outcome is what applying a strategy implies for the entity.
// Changes holds the fields to apply; Flagged lists fields touched by more
// than one edit, left at the entity's existing value for manual follow-up.
type Outcome struct {
	Changes map[string]any `json:"changes,omitempty"`
	Flagged []string       `json:"flagged,omitempty"`
}

// Manager owns the conflict records.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*Resolution
	pending map[string]string // entity id -> pending record id

	clock func() time.Time
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		records: make(map[string]*Resolution),
		pending: make(map[string]string),
		clock:   time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Record creates a pending conflict, or coalesces into the existing
// pending record for the same entity: users are unioned and edits
// appended. One pending record per entity keeps the resolution UI from
// presenting the same dispute twice.
func (m *Manager) Record(entityID string, typ Type, users []string, edits ...Edit) Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.pending[entityID]; ok {
		r := m.records[id]
		r.Users = unionUsers(r.Users, users)
		r.Edits = append(r.Edits, edits...)
		return *r
	}

	r := &Resolution{
		ID:        uuid.NewString(),
		Type:      typ,
		EntityID:  entityID,
		Users:     unionUsers(nil, users),
		Edits:     edits,
		Status:    StatusPending,
		CreatedAt: m.clock(),
	}
	m.records[r.ID] = r
	m.pending[entityID] = r.ID

	return *r
}

// Resolve applies a strategy to a pending or escalated conflict.
//
//   - merge: field-level union of non-overlapping changes; overlapping
//     fields are flagged and left untouched.
//   - overwrite: the most recently timestamped edit wins entirely.
//   - manual_review: no mutation; the conflict is marked escalated and a
//     later Resolve call with merge or overwrite completes it.
func (m *Manager) Resolve(id string, strategy Strategy, notes, resolvedBy string) (Resolution, Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return Resolution{}, Outcome{}, constants.ErrConflictNotFound
	}
	if r.Status == StatusResolved {
		return Resolution{}, Outcome{}, constants.ErrConflictResolved
	}

	var outcome Outcome
	switch strategy {
	case StrategyMerge:
		outcome = mergeEdits(r.Edits)
	case StrategyOverwrite:
		outcome = overwriteEdits(r.Edits)
	case StrategyManualReview:
		if r.Status == StatusEscalated {
			// Escalating twice is a no-op; completion needs a concrete strategy.
			return *r, Outcome{}, nil
		}
		r.Status = StatusEscalated
		r.Strategy = StrategyManualReview
		r.Notes = notes
		return *r, Outcome{}, nil
	default:
		return Resolution{}, Outcome{}, constants.ErrUnknownStrategy
	}

	r.Status = StatusResolved
	r.Strategy = strategy
	r.Notes = notes
	r.ResolvedBy = resolvedBy
	r.ResolvedAt = m.clock()
	delete(m.pending, r.EntityID)

	return *r, outcome, nil
}

// Clear drops every record, pending and resolved. Used when the client
// switches workspaces: a pending record keyed by an entity id from the
// previous workspace must not coalesce with a new one.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Resolution)
	m.pending = make(map[string]string)
}

// Pending returns the pending record for an entity, if any.
func (m *Manager) Pending(entityID string) (Resolution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.pending[entityID]
	if !ok {
		return Resolution{}, false
	}
	return *m.records[id], true
}

// Get returns one conflict record by id.
func (m *Manager) Get(id string) (Resolution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return Resolution{}, false
	}
	return *r, true
}

// List returns all conflict records, newest first.
func (m *Manager) List() []Resolution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Resolution, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func unionUsers(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, u := range existing {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, u := range incoming {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// mergeEdits unions fields touched by exactly one edit. Fields touched by
// more than one are flagged and omitted, leaving the entity's value.
func mergeEdits(edits []Edit) Outcome {
	touches := make(map[string]int)
	values := make(map[string]any)
	for _, e := range edits {
		for field, v := range e.Changes {
			touches[field]++
			values[field] = v
		}
	}

	out := Outcome{Changes: make(map[string]any)}
	for field, n := range touches {
		if n == 1 {
			out.Changes[field] = values[field]
		} else {
			out.Flagged = append(out.Flagged, field)
		}
	}
	sort.Strings(out.Flagged)
	return out
}

// overwriteEdits picks the latest timestamped edit wholesale.
func overwriteEdits(edits []Edit) Outcome {
	if len(edits) == 0 {
		return Outcome{}
	}

	winner := edits[0]
	for _, e := range edits[1:] {
		if e.Timestamp.After(winner.Timestamp) {
			winner = e
		}
	}
	return Outcome{Changes: winner.Changes}
}
