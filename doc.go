// The [collab] package implements the client side of a real-time
// collaboration protocol for shared argument-mapping workspaces.
//
// # Connection
//
// A [Client] holds exactly one WebSocket channel to the synchronization
// server. Construct it with [New], open the channel with
// [Client.Initialize] and close it with [Client.Teardown]. A dropped
// channel is re-established automatically with exponential backoff; after
// the configured attempt cap the client gives up and reports a fatal
// condition, at which point a fresh [Client.Initialize] is required.
//
// # Workspace state
//
// All inbound events mutate an in-memory [pkg/workspace.State]: live
// presence of other participants, open edit sessions, unresolved
// conflicts, a bounded change history, discussion threads with validation
// scores, and notifications. The state is exposed read-only through
// [Client.State] and is safe for concurrent access, so UI layers can bind
// to it directly.
//
// # Editing
//
// Editing is optimistic. [Client.ApplyClaimChange] lands in a local
// buffer and is broadcast immediately; the server stays authoritative.
// When the server reports a concurrent edit the session is flagged but
// its buffer is kept, and the dispute is resolved explicitly through
// [Client.ResolveConflict] with a merge, overwrite or manual_review
// strategy.
//
// Wire framing is JSON; see [pkg/message] for the event catalogue.
package collab
