// Package workspace bundles the local collaborative state kept for one
// project: who is present, which claims are being edited, unresolved
// conflicts, recent activity, discussion threads and notifications.
package workspace

import (
	"github.com/argumap/collab.go/pkg/conflict"
	"github.com/argumap/collab.go/pkg/discussion"
	"github.com/argumap/collab.go/pkg/editing"
	"github.com/argumap/collab.go/pkg/history"
	"github.com/argumap/collab.go/pkg/notify"
	"github.com/argumap/collab.go/pkg/presence"
)

// Options configure a fresh State.
type Options struct {
	HistoryLimit int
	EditingHooks editing.Hooks
	Editing      editing.Options
}

// State is the in-memory picture of one project. All stores are safe for
// concurrent use; the zero value is not usable, construct via New.
type State struct {
	Presence      *presence.Tracker
	Editing       *editing.Controller
	Conflicts     *conflict.Manager
	History       *history.Log
	Discussion    *discussion.Store
	Notifications *notify.Dispatcher
}

// New builds an empty State.
func New(opts Options) *State {
	return &State{
		Presence:      presence.NewTracker(),
		Editing:       editing.NewController(opts.EditingHooks, opts.Editing),
		Conflicts:     conflict.NewManager(),
		History:       history.NewLog(opts.HistoryLimit),
		Discussion:    discussion.NewStore(),
		Notifications: notify.NewDispatcher(),
	}
}

// Reset drops all project-scoped state while keeping the same stores
// reachable from existing references: the roster, open edit sessions
// (discarded without committing), conflict records, history, discussion
// threads and notifications.
func (s *State) Reset() {
	s.Presence.SetActiveUsers(nil)
	for _, claimID := range s.Editing.Active() {
		_ = s.Editing.StopEditing(claimID, false)
	}
	s.Conflicts.Clear()
	s.History.Clear()
	s.Discussion.Clear()
	s.Notifications.ClearAll()
}
