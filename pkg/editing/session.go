// Package editing enforces a soft single-writer discipline per claim and
// buffers local edits before they are durably saved.
//
// Local mutation is optimistic: a change lands in the session buffer and
// is sent outward immediately, before any server confirmation. The server
// stays authoritative; a rejection keeps the buffer so no work is lost.
package editing

import (
	"fmt"
	"sync"
	"time"

	"github.com/argumap/collab.go/pkg/constants"
	"github.com/argumap/collab.go/pkg/logger"
)

// Session represents "this claim is being edited by the local user".
// At most one exists per claim per client.
type Session struct {
	ClaimID     string         `json:"claimId"`
	StartedAt   time.Time      `json:"startedAt"`
	LastChange  time.Time      `json:"lastChange"`
	Buffer      map[string]any `json:"buffer"`
	Dirty       bool           `json:"dirty"`
	Conflicted  bool           `json:"conflicted"`
	Unconfirmed int            `json:"unconfirmed"` // change batches not yet committed
}

// Hooks connect the controller to the rest of the runtime. All fields are
// optional; nil hooks are skipped.
type Hooks struct {
	// RemoteEditor reports whether presence shows another user editing the
	// claim. Advisory only; the server may still reject the edit.
	RemoteEditor func(claimID string) (editorID string, ok bool)

	// EditStarted/EditUpdated/EditEnded emit the outbound wire messages.
	EditStarted func(claimID string)
	EditUpdated func(claimID string, changes map[string]any)
	EditEnded   func(claimID string, save bool, buffer map[string]any)

	// Conflicted is invoked when a conflict signal arrives for a claim with
	// an open session. The session stays open; the buffer is not discarded.
	Conflicted func(claimID, editorID, reason string)
}

// Options tune the controller.
type Options struct {
	FlushAfter    time.Duration // commit a buffer dirty longer than this
	CheckInterval time.Duration // how often the sweeper looks
	Logger        logger.Logger
	Clock         func() time.Time
}

// Controller owns all local edit sessions.
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*Session
	hooks    Hooks

	flushAfter    time.Duration
	checkInterval time.Duration
	clock         func() time.Time
	log           logger.Logger

	stopCh chan struct{}
}

// NewController creates a Controller. Zero option fields fall back to the
// shared defaults.
func NewController(hooks Hooks, opts Options) *Controller {
	if opts.FlushAfter <= 0 {
		opts.FlushAfter = constants.DefaultFlushAfter
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = constants.DefaultFlushCheckInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Controller{
		sessions:      make(map[string]*Session),
		hooks:         hooks,
		flushAfter:    opts.FlushAfter,
		checkInterval: opts.CheckInterval,
		clock:         opts.Clock,
		log:           opts.Logger,
	}
}

// StartEditing opens a session for the claim. It fails if a local session
// already exists, or if presence shows a remote editor (advisory check).
func (c *Controller) StartEditing(claimID string) error {
	c.mu.Lock()

	if _, ok := c.sessions[claimID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", constants.ErrSessionExists, claimID)
	}

	if c.hooks.RemoteEditor != nil {
		if editor, ok := c.hooks.RemoteEditor(claimID); ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s is edited by %s", constants.ErrClaimedByPeer, claimID, editor)
		}
	}

	now := c.clock()
	c.sessions[claimID] = &Session{
		ClaimID:    claimID,
		StartedAt:  now,
		LastChange: now,
		Buffer:     make(map[string]any),
	}
	c.mu.Unlock()

	if c.hooks.EditStarted != nil {
		c.hooks.EditStarted(claimID)
	}
	return nil
}

// ApplyChange merges a delta into the session buffer, stamps LastChange,
// and emits the outbound edit update. This is the optimistic write.
func (c *Controller) ApplyChange(claimID string, delta map[string]any) error {
	if len(delta) == 0 {
		return constants.ErrEmptyChange
	}

	c.mu.Lock()
	s, ok := c.sessions[claimID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", constants.ErrNoSession, claimID)
	}

	for k, v := range delta {
		s.Buffer[k] = v
	}
	s.Dirty = true
	s.Unconfirmed++
	s.LastChange = c.clock()
	c.mu.Unlock()

	if c.hooks.EditUpdated != nil {
		c.hooks.EditUpdated(claimID, delta)
	}
	return nil
}

// StopEditing ends the session. With commit the buffered changes are
// handed to the EditEnded hook for merging into authoritative state;
// otherwise the buffer is dropped.
func (c *Controller) StopEditing(claimID string, commit bool) error {
	c.mu.Lock()
	s, ok := c.sessions[claimID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", constants.ErrNoSession, claimID)
	}

	delete(c.sessions, claimID)
	buffer := s.Buffer
	c.mu.Unlock()

	if !commit {
		buffer = nil
	}
	if c.hooks.EditEnded != nil {
		c.hooks.EditEnded(claimID, commit, buffer)
	}
	return nil
}

// MarkConflicted flags an open session as conflicted and fires the
// Conflicted hook. The session and its buffer stay put, pending manual
// resolution. Returns false when no session is open for the claim.
func (c *Controller) MarkConflicted(claimID, editorID, reason string) bool {
	c.mu.Lock()
	s, ok := c.sessions[claimID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	s.Conflicted = true
	c.mu.Unlock()

	c.log.Warn("edit session conflicted", "claim_id", claimID, "editor", editorID, "reason", reason)
	if c.hooks.Conflicted != nil {
		c.hooks.Conflicted(claimID, editorID, reason)
	}
	return true
}

// ClearConflict lifts the conflicted flag once the dispute is resolved,
// so the session becomes eligible for flushing again. Returns false when
// no session is open for the claim.
func (c *Controller) ClearConflict(claimID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[claimID]
	if !ok {
		return false
	}
	s.Conflicted = false
	return true
}

// Session returns a copy of the session for a claim.
func (c *Controller) Session(claimID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[claimID]
	if !ok {
		return Session{}, false
	}

	out := *s
	out.Buffer = make(map[string]any, len(s.Buffer))
	for k, v := range s.Buffer {
		out.Buffer[k] = v
	}
	return out, true
}

// Active returns the ids of claims with an open session.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// StartAutoFlush launches the background sweeper that commits sessions
// whose buffer has been dirty longer than the flush window. Conflicted
// sessions are skipped: their fate is decided by conflict resolution.
func (c *Controller) StartAutoFlush() {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	go c.sweep(stopCh)
}

// StopAutoFlush cancels the sweeper. Safe to call more than once.
func (c *Controller) StopAutoFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

func (c *Controller) sweep(stopCh chan struct{}) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.flushIdle()
		}
	}
}

// flushIdle commits every non-conflicted session idle past the window.
func (c *Controller) flushIdle() {
	cutoff := c.clock().Add(-c.flushAfter)

	c.mu.Lock()
	var due []string
	for id, s := range c.sessions {
		if s.Dirty && !s.Conflicted && s.LastChange.Before(cutoff) {
			due = append(due, id)
		}
	}
	c.mu.Unlock()

	for _, id := range due {
		c.log.Debug("auto-flushing idle edit session", "claim_id", id)
		if err := c.StopEditing(id, true); err != nil {
			c.log.Error("auto-flush failed", "claim_id", id, "error", err)
		}
	}
}
