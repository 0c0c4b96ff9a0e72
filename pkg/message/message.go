// Package message defines the logical wire protocol spoken with the
// synchronization server: event names and payload shapes. Framing is
// JSON over whatever channel the connection package provides.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName identifies a wire message type.
type EventName string

// Outbound events.
const (
	JoinProject     EventName = "join_project"
	LeaveProject    EventName = "leave_project"
	CursorUpdate    EventName = "cursor_update"
	ClaimEditStart  EventName = "claim_edit_start"
	ClaimEditUpdate EventName = "claim_edit_update"
	ClaimEditEnd    EventName = "claim_edit_end"
)

// Inbound events.
const (
	UserJoinedProject   EventName = "user_joined_project"
	UserLeftProject     EventName = "user_left_project"
	ClaimEditStarted    EventName = "claim_edit_started"
	ClaimEditUpdated    EventName = "claim_edit_update"
	ClaimEditEnded      EventName = "claim_edit_ended"
	ClaimEditConflict   EventName = "claim_edit_conflict"
	CommentAdded        EventName = "comment_added"
	CommentUpdated      EventName = "comment_updated"
	CommentResolved     EventName = "comment_resolved"
	ValidationSubmitted EventName = "validation_submitted"
)

// Envelope is the frame carried on the channel in both directions.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Event   EventName       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event.
func NewEnvelope(event EventName, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("message: marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into dest.
func (e Envelope) Decode(dest any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("message: %s carried no payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("message: decode %s payload: %w", e.Event, err)
	}
	return nil
}

// User identifies a participant as carried on the wire.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Position is a 2D pointer location within the rendered workspace.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Selection is a text selection range inside the targeted element.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ProjectRef is the payload of join_project and leave_project.
type ProjectRef struct {
	ProjectID string `json:"projectId"`
}

// CursorPayload is the payload of cursor_update in both directions.
// UserID is set only on inbound messages.
type CursorPayload struct {
	ProjectID string     `json:"projectId,omitempty"`
	UserID    string     `json:"userId,omitempty"`
	ElementID string     `json:"elementId"`
	Position  Position   `json:"position"`
	Selection *Selection `json:"selection,omitempty"`
}

// EditPayload covers claim_edit_start, claim_edit_update and claim_edit_end
// outbound, and claim_edit_started/claim_edit_update/claim_edit_ended inbound.
type EditPayload struct {
	ClaimID        string         `json:"claimId"`
	ProjectID      string         `json:"projectId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	User           *User          `json:"user,omitempty"`
	Changes        map[string]any `json:"changes,omitempty"`
	CursorPosition *Position      `json:"cursorPosition,omitempty"`
	Save           *bool          `json:"save,omitempty"`
	Forced         bool           `json:"forced,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// ConflictPayload is the payload of claim_edit_conflict.
type ConflictPayload struct {
	ClaimID       string `json:"claimId"`
	CurrentEditor User   `json:"currentEditor"`
	Message       string `json:"message,omitempty"`
}

// PresencePayload is the payload of user_joined_project and user_left_project.
type PresencePayload struct {
	UserID    string    `json:"userId"`
	User      User      `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}
