package collab

import (
	"fmt"

	"github.com/argumap/collab.go/pkg/conflict"
	"github.com/argumap/collab.go/pkg/discussion"
	"github.com/argumap/collab.go/pkg/history"
	"github.com/argumap/collab.go/pkg/message"
	"github.com/argumap/collab.go/pkg/notify"
	"github.com/argumap/collab.go/pkg/presence"
)

// dispatch routes one inbound envelope to the store it mutates. It runs
// on the connection read goroutine, so handlers apply in arrival order.
func (c *Client) dispatch(env message.Envelope) {
	var err error
	switch env.Event {
	case message.UserJoinedProject:
		err = c.onUserJoined(env)
	case message.UserLeftProject:
		err = c.onUserLeft(env)
	case message.CursorUpdate:
		err = c.onCursorUpdate(env)
	case message.ClaimEditStarted:
		err = c.onEditStarted(env)
	case message.ClaimEditUpdated:
		err = c.onEditUpdated(env)
	case message.ClaimEditEnded:
		err = c.onEditEnded(env)
	case message.ClaimEditConflict:
		err = c.onEditConflict(env)
	case message.CommentAdded, message.CommentUpdated:
		err = c.onComment(env)
	case message.CommentResolved:
		err = c.onCommentResolved(env)
	case message.ValidationSubmitted:
		err = c.onValidation(env)
	default:
		c.log.Debug("ignoring unknown event", "event", env.Event)
		return
	}
	if err != nil {
		c.log.Error("event handling failed", "event", env.Event, "error", err)
	}
}

func (c *Client) onUserJoined(env message.Envelope) error {
	var p message.PresencePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.User.ID == c.self.ID {
		return nil
	}
	c.state.Presence.Join(presence.User(p.User))
	c.state.Notifications.Push(notify.Notification{
		Type:         "presence",
		Title:        fmt.Sprintf("%s joined the project", displayName(p.User)),
		SourceUserID: p.User.ID,
		Priority:     notify.PriorityLow,
	})
	return nil
}

func (c *Client) onUserLeft(env message.Envelope) error {
	var p message.PresencePayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	c.state.Presence.Remove(p.UserID)
	c.state.Notifications.Push(notify.Notification{
		Type:         "presence",
		Title:        fmt.Sprintf("%s left the project", displayName(p.User)),
		SourceUserID: p.UserID,
		Priority:     notify.PriorityLow,
	})
	return nil
}

func (c *Client) onCursorUpdate(env message.Envelope) error {
	var p message.CursorPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID == c.self.ID {
		return nil
	}
	cursor := &presence.Cursor{
		ElementID: p.ElementID,
		X:         p.Position.X,
		Y:         p.Position.Y,
	}
	if p.Selection != nil {
		cursor.SelStart = p.Selection.Start
		cursor.SelEnd = p.Selection.End
	}
	c.state.Presence.Upsert(p.UserID, presence.Update{Cursor: cursor})
	return nil
}

func (c *Client) onEditStarted(env message.Envelope) error {
	var p message.EditPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID == c.self.ID {
		return nil
	}
	if p.User != nil {
		c.state.Presence.Join(presence.User(*p.User))
	}
	act := presence.ActivityEditing
	c.state.Presence.Upsert(p.UserID, presence.Update{
		Activity:  &act,
		EditingID: &p.ClaimID,
	})
	return nil
}

func (c *Client) onEditUpdated(env message.Envelope) error {
	var p message.EditPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID == c.self.ID {
		return nil
	}
	// The remote buffer is still uncommitted; only presence freshness and
	// cursor advance here. The change lands in history on claim_edit_ended.
	if p.CursorPosition != nil {
		c.state.Presence.Upsert(p.UserID, presence.Update{Cursor: &presence.Cursor{
			ElementID: p.ClaimID,
			X:         p.CursorPosition.X,
			Y:         p.CursorPosition.Y,
		}})
	} else {
		c.state.Presence.Upsert(p.UserID, presence.Update{})
	}
	return nil
}

func (c *Client) onEditEnded(env message.Envelope) error {
	var p message.EditPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	if p.UserID == c.self.ID {
		// The server force-ends our session, e.g. on a lock timeout. A
		// voluntary end was initiated locally and needs no echo handling.
		if p.Forced {
			if err := c.state.Editing.StopEditing(p.ClaimID, false); err == nil {
				c.state.Notifications.Push(notify.Notification{
					Type:     "editing",
					Title:    "Edit session ended by server",
					Message:  reasonOrDefault(p.Reason, "your edit session was closed"),
					Priority: notify.PriorityUrgent,
				})
			}
		}
		return nil
	}

	act := presence.ActivityViewing
	none := ""
	c.state.Presence.Upsert(p.UserID, presence.Update{
		Activity:  &act,
		EditingID: &none,
	})

	saved := p.Save == nil || *p.Save
	if saved && len(p.Changes) > 0 {
		c.state.History.Append(history.Event{
			Kind:       history.KindUpdate,
			EntityType: "claim",
			EntityID:   p.ClaimID,
			UserID:     p.UserID,
			Payload:    p.Changes,
		})
	}
	return nil
}

// onEditConflict materializes the server's conflict verdict: record it,
// flag the open session (its buffer is kept), and let the Conflicted hook
// raise the notification.
func (c *Client) onEditConflict(env message.Envelope) error {
	var p message.ConflictPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	var edits []conflict.Edit
	if s, ok := c.state.Editing.Session(p.ClaimID); ok && len(s.Buffer) > 0 {
		edits = append(edits, conflict.Edit{
			UserID:    c.self.ID,
			Changes:   s.Buffer,
			Timestamp: s.LastChange,
		})
	}
	c.state.Conflicts.Record(p.ClaimID, conflict.TypeConcurrentEdit,
		[]string{c.self.ID, p.CurrentEditor.ID}, edits...)

	if !c.state.Editing.MarkConflicted(p.ClaimID, p.CurrentEditor.ID, p.Message) {
		// No open session, e.g. the conflict raced a local stop. The
		// record above still surfaces it for review.
		c.state.Notifications.Push(notify.Notification{
			Type:         "conflict",
			Title:        "Edit conflict",
			Message:      reasonOrDefault(p.Message, "another user is editing this claim"),
			SourceUserID: p.CurrentEditor.ID,
			Priority:     notify.PriorityHigh,
		})
	}
	return nil
}

func (c *Client) onComment(env message.Envelope) error {
	var cm discussion.Comment
	if err := env.Decode(&cm); err != nil {
		return err
	}
	stored := c.state.Discussion.ApplyRemote(cm)
	if env.Event == message.CommentAdded && stored.Author.ID != c.self.ID {
		c.state.Notifications.Push(notify.Notification{
			Type:         "comment",
			Title:        fmt.Sprintf("%s commented", stored.Author.Name),
			Message:      stored.Text,
			SourceUserID: stored.Author.ID,
			Priority:     notify.PriorityNormal,
		})
	}
	return nil
}

func (c *Client) onCommentResolved(env message.Envelope) error {
	var p struct {
		CommentID string `json:"commentId"`
		Resolved  bool   `json:"resolved"`
	}
	if err := env.Decode(&p); err != nil {
		return err
	}
	return c.state.Discussion.SetResolved(p.CommentID, p.Resolved)
}

func (c *Client) onValidation(env message.Envelope) error {
	var sub discussion.ValidationSubmission
	if err := env.Decode(&sub); err != nil {
		return err
	}
	if _, err := c.state.Discussion.SubmitValidation(sub); err != nil {
		return err
	}
	if sub.ValidatorID != c.self.ID {
		c.state.Notifications.Push(notify.Notification{
			Type:         "validation",
			Title:        "New validation submitted",
			Message:      fmt.Sprintf("score %.0f on %s", sub.Score, sub.TargetID),
			SourceUserID: sub.ValidatorID,
			Priority:     notify.PriorityNormal,
		})
	}
	return nil
}

func displayName(u message.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
