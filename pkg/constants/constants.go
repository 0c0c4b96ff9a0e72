package constants

import "time"

// Defaults shared between the config loader and component constructors.
const (
	// DefaultReconnectBase is the delay of the first reconnection attempt.
	// Attempt n waits DefaultReconnectBase * 2^(n-1).
	DefaultReconnectBase = 1 * time.Second

	// DefaultMaxReconnectAttempts is the number of reconnection attempts
	// made before the connection enters its terminal failed state.
	DefaultMaxReconnectAttempts = 5

	// DefaultHeartbeatInterval is how often a ping frame is written on an
	// established connection. Heartbeats are liveness signaling only.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultHistoryLimit bounds the change history log. The oldest entry
	// is evicted once the limit is exceeded.
	DefaultHistoryLimit = 100

	// DefaultFlushAfter is how long an edit buffer may sit dirty before the
	// auto-flush sweeper commits it.
	DefaultFlushAfter = 2 * time.Second

	// DefaultFlushCheckInterval is how often the auto-flush sweeper runs.
	DefaultFlushCheckInterval = 5 * time.Second

	// MessageIDLength is the length of generated outbound message ids.
	MessageIDLength = 16
)
