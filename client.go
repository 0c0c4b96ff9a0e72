package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/argumap/collab.go/pkg/config"
	"github.com/argumap/collab.go/pkg/conflict"
	"github.com/argumap/collab.go/pkg/connection"
	"github.com/argumap/collab.go/pkg/discussion"
	"github.com/argumap/collab.go/pkg/editing"
	"github.com/argumap/collab.go/pkg/history"
	"github.com/argumap/collab.go/pkg/logger"
	"github.com/argumap/collab.go/pkg/message"
	"github.com/argumap/collab.go/pkg/notify"
	"github.com/argumap/collab.go/pkg/presence"
	"github.com/argumap/collab.go/pkg/workspace"
)

// User identifies the local participant.
type User = message.User

// Options configure a Client.
type Options struct {
	Config config.Config
	Self   User
	Logger logger.Logger
}

// Client is the collaboration runtime: one live channel to the
// synchronization server plus the local mirror of the shared workspace.
// Construct with New, open with Initialize, close with Teardown.
type Client struct {
	cfg  config.Config
	self User
	log  logger.Logger

	conn  *connection.Manager
	state *workspace.State

	mu            sync.Mutex
	projectID     string
	lastStatus    connection.Status
	everConnected bool
}

// New wires the runtime together. The channel is not opened yet.
func New(opts Options) (*Client, error) {
	if opts.Self.ID == "" {
		return nil, fmt.Errorf("collab: options: self user id is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	c := &Client{
		cfg:  opts.Config,
		self: opts.Self,
		log:  opts.Logger,
	}

	c.conn = connection.NewManager(connection.Options{
		ReconnectBase:     opts.Config.Connection.ReconnectBase,
		MaxReconnects:     opts.Config.Connection.MaxReconnects,
		HeartbeatInterval: opts.Config.Connection.HeartbeatInterval,
		Logger:            opts.Logger,
	})

	c.state = workspace.New(workspace.Options{
		HistoryLimit: opts.Config.History.Limit,
		EditingHooks: c.editingHooks(),
		Editing: editing.Options{
			FlushAfter:    opts.Config.Editing.FlushAfter,
			CheckInterval: opts.Config.Editing.FlushCheckInterval,
			Logger:        opts.Logger,
		},
	})

	c.conn.OnMessage(c.dispatch)
	c.conn.OnStatusChange(c.handleStatus)
	c.conn.OnFatal(c.handleFatal)
	return c, nil
}

// Initialize opens the channel and starts the edit-buffer sweeper.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.conn.Initialize(ctx, c.cfg.Connection.AuthToken, c.cfg.Connection.Endpoint); err != nil {
		return err
	}
	c.state.Editing.StartAutoFlush()
	return nil
}

// Teardown stops the sweeper and closes the channel.
func (c *Client) Teardown() error {
	c.state.Editing.StopAutoFlush()
	return c.conn.Teardown()
}

// Status reports the channel lifecycle state.
func (c *Client) Status() connection.Status {
	return c.conn.Status()
}

// State exposes the local workspace stores for read access and UI binding.
func (c *Client) State() *workspace.State {
	return c.state
}

// JoinProject announces the local user in a project room and resets all
// project-scoped state. Joining a second project implicitly leaves the
// first.
func (c *Client) JoinProject(projectID string) error {
	// Discard the previous project's sessions before swapping the id, so
	// their claim_edit_end frames still carry the project they belong to.
	c.state.Reset()

	c.mu.Lock()
	c.projectID = projectID
	c.mu.Unlock()

	c.state.Presence.Join(presence.User(c.self))

	return c.conn.Send(message.JoinProject, message.ProjectRef{ProjectID: projectID})
}

// LeaveProject announces departure and drops project-scoped state.
func (c *Client) LeaveProject() error {
	c.mu.Lock()
	projectID := c.projectID
	c.mu.Unlock()

	if projectID == "" {
		return nil
	}

	// Sessions are discarded while the project id is still set, so their
	// claim_edit_end frames are attributed to the project being left.
	c.state.Reset()
	err := c.conn.Send(message.LeaveProject, message.ProjectRef{ProjectID: projectID})

	c.mu.Lock()
	c.projectID = ""
	c.mu.Unlock()
	return err
}

// UpdateCursor broadcasts the local pointer position over an element,
// optionally with a text selection.
func (c *Client) UpdateCursor(elementID string, pos message.Position, sel *message.Selection) error {
	return c.conn.Send(message.CursorUpdate, message.CursorPayload{
		ProjectID: c.currentProject(),
		ElementID: elementID,
		Position:  pos,
		Selection: sel,
	})
}

// StartEditingClaim opens a local edit session for the claim and announces
// it. Fails when a local session exists or presence shows a remote editor.
func (c *Client) StartEditingClaim(claimID string) error {
	return c.state.Editing.StartEditing(claimID)
}

// ApplyClaimChange buffers a field delta optimistically and broadcasts it.
func (c *Client) ApplyClaimChange(claimID string, delta map[string]any) error {
	return c.state.Editing.ApplyChange(claimID, delta)
}

// StopEditingClaim ends the session, committing or discarding the buffer.
func (c *Client) StopEditingClaim(claimID string, save bool) error {
	return c.state.Editing.StopEditing(claimID, save)
}

// AddComment stores a comment authored by the local user. The server
// broadcast will arrive as comment_added and is deduplicated by id.
func (c *Client) AddComment(targetID, targetType, parentID, text string) (discussion.Comment, error) {
	return c.state.Discussion.AddComment(discussion.Comment{
		Text:       text,
		Author:     discussion.Author{ID: c.self.ID, Name: c.self.Name},
		TargetID:   targetID,
		TargetType: targetType,
		ParentID:   parentID,
	})
}

// ReactToComment toggles the local user's reaction on a comment.
func (c *Client) ReactToComment(commentID string, kind discussion.ReactionKind) (discussion.Comment, error) {
	return c.state.Discussion.React(commentID, c.self.ID, kind)
}

// ResolveComment flips a comment's resolved flag.
func (c *Client) ResolveComment(commentID string, resolved bool) error {
	return c.state.Discussion.SetResolved(commentID, resolved)
}

// SubmitValidation records the local user's quality assessment of an
// entity and returns the recomputed aggregate.
func (c *Client) SubmitValidation(sub discussion.ValidationSubmission) (discussion.ValidationResult, error) {
	sub.ValidatorID = c.self.ID
	return c.state.Discussion.SubmitValidation(sub)
}

// ResolveConflict applies a strategy to a pending conflict. On a resolved
// outcome any conflicted session for the entity becomes flushable again;
// a manual_review escalation raises an urgent notification instead.
func (c *Client) ResolveConflict(id string, strategy conflict.Strategy, notes string) (conflict.Resolution, conflict.Outcome, error) {
	res, out, err := c.state.Conflicts.Resolve(id, strategy, notes, c.self.ID)
	if err != nil {
		return res, out, err
	}

	switch res.Status {
	case conflict.StatusEscalated:
		c.state.Notifications.Push(notify.Notification{
			Type:     "conflict",
			Title:    "Conflict escalated for review",
			Message:  fmt.Sprintf("conflict on %s requires manual review", res.EntityID),
			Priority: notify.PriorityUrgent,
		})
	case conflict.StatusResolved:
		c.state.Editing.ClearConflict(res.EntityID)
		c.state.History.Append(history.Event{
			Kind:       history.KindUpdate,
			EntityType: "claim",
			EntityID:   res.EntityID,
			UserID:     c.self.ID,
			Payload:    out.Changes,
		})
	}
	return res, out, nil
}

func (c *Client) currentProject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}

// editingHooks bridge the session controller to presence, the wire and
// notifications.
func (c *Client) editingHooks() editing.Hooks {
	return editing.Hooks{
		RemoteEditor: func(claimID string) (string, bool) {
			p, ok := c.state.Presence.EditorOf(claimID)
			if !ok || p.User.ID == c.self.ID {
				return "", false
			}
			return p.User.ID, true
		},
		EditStarted: func(claimID string) {
			_ = c.conn.Send(message.ClaimEditStart, message.EditPayload{
				ClaimID:   claimID,
				ProjectID: c.currentProject(),
				UserID:    c.self.ID,
			})
			c.setOwnActivity(presence.ActivityEditing, claimID)
		},
		EditUpdated: func(claimID string, changes map[string]any) {
			_ = c.conn.Send(message.ClaimEditUpdate, message.EditPayload{
				ClaimID:   claimID,
				ProjectID: c.currentProject(),
				UserID:    c.self.ID,
				Changes:   changes,
			})
		},
		EditEnded: func(claimID string, save bool, buffer map[string]any) {
			_ = c.conn.Send(message.ClaimEditEnd, message.EditPayload{
				ClaimID:   claimID,
				ProjectID: c.currentProject(),
				UserID:    c.self.ID,
				Changes:   buffer,
				Save:      &save,
			})
			c.setOwnActivity(presence.ActivityViewing, "")
			if save && len(buffer) > 0 {
				c.state.History.Append(history.Event{
					Kind:       history.KindUpdate,
					EntityType: "claim",
					EntityID:   claimID,
					UserID:     c.self.ID,
					Payload:    buffer,
				})
			}
		},
		Conflicted: func(claimID, editorID, reason string) {
			c.state.Notifications.Push(notify.Notification{
				Type:         "conflict",
				Title:        "Edit conflict",
				Message:      reasonOrDefault(reason, "another user is editing this claim"),
				SourceUserID: editorID,
				Priority:     notify.PriorityHigh,
			})
		},
	}
}

func (c *Client) setOwnActivity(a presence.Activity, editingID string) {
	c.state.Presence.Upsert(c.self.ID, presence.Update{
		Activity:  &a,
		EditingID: &editingID,
	})
}

// handleStatus turns channel transitions into notifications, and rejoins
// the project room after a successful reconnect since the room membership
// is connection-scoped server side.
func (c *Client) handleStatus(s connection.Status) {
	c.mu.Lock()
	prev := c.lastStatus
	c.lastStatus = s
	projectID := c.projectID
	rejoin := c.everConnected
	if s == connection.StatusConnected {
		c.everConnected = true
	}
	c.mu.Unlock()

	switch s {
	case connection.StatusReconnecting:
		if prev == connection.StatusConnected {
			c.state.Notifications.Push(notify.Notification{
				Type:     "connection",
				Title:    "Connection lost",
				Message:  "reconnecting to the collaboration server",
				Priority: notify.PriorityHigh,
			})
		}
	case connection.StatusConnected:
		if !rejoin {
			return
		}
		if projectID != "" {
			_ = c.conn.Send(message.JoinProject, message.ProjectRef{ProjectID: projectID})
		}
		c.state.Notifications.Push(notify.Notification{
			Type:     "connection",
			Title:    "Reconnected",
			Message:  "collaboration restored",
			Priority: notify.PriorityNormal,
		})
	}
}

func (c *Client) handleFatal(err error) {
	c.log.Error("connection permanently failed", "error", err)
	c.state.Notifications.Push(notify.Notification{
		Type:     "connection",
		Title:    "Connection failed",
		Message:  "reconnection attempts exhausted, please reconnect manually",
		Priority: notify.PriorityUrgent,
	})
}

func reasonOrDefault(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
