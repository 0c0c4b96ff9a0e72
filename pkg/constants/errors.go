package constants

import "errors"

// Errors
var (
	ErrNotConnected       = errors.New("connection is not established")
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	ErrNoEndpoint         = errors.New("endpoint not set")

	ErrSessionExists = errors.New("an edit session already exists for this claim")
	ErrClaimedByPeer = errors.New("claim is being edited by another user")
	ErrNoSession     = errors.New("no active edit session for this claim")
	ErrEmptyChange   = errors.New("change delta is empty")

	ErrConflictNotFound = errors.New("conflict not found")
	ErrConflictResolved = errors.New("conflict is already resolved")
	ErrUnknownStrategy  = errors.New("unknown resolution strategy")

	ErrCommentNotFound = errors.New("comment not found")
	ErrParentNotFound  = errors.New("parent comment not found")
	ErrEmptyComment    = errors.New("comment text is empty")

	ErrScoreOutOfRange      = errors.New("score must be within [0,100]")
	ErrConfidenceOutOfRange = errors.New("confidence must be within [0,1]")
)
