package editing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argumap/collab.go/pkg/constants"
)

type recorder struct {
	mu       sync.Mutex
	started  []string
	updated  []map[string]any
	ended    []string
	saved    []bool
	buffers  []map[string]any
	conflict []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		EditStarted: func(id string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.started = append(r.started, id)
		},
		EditUpdated: func(id string, changes map[string]any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updated = append(r.updated, changes)
		},
		EditEnded: func(id string, save bool, buffer map[string]any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ended = append(r.ended, id)
			r.saved = append(r.saved, save)
			r.buffers = append(r.buffers, buffer)
		},
		Conflicted: func(id, editor, reason string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.conflict = append(r.conflict, id)
		},
	}
}

func TestSingleSessionPerClaim(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.hooks(), Options{})

	require.NoError(t, c.StartEditing("claim-1"))
	err := c.StartEditing("claim-1")
	assert.ErrorIs(t, err, constants.ErrSessionExists)

	require.NoError(t, c.StopEditing("claim-1", false))
	require.NoError(t, c.StartEditing("claim-1"), "session can reopen after stop")

	// Any start/stop sequence leaves at most one session for the claim.
	assert.Equal(t, []string{"claim-1"}, c.Active())
}

func TestRemoteEditorIsAdvisoryBlock(t *testing.T) {
	hooks := Hooks{
		RemoteEditor: func(claimID string) (string, bool) {
			if claimID == "claim-1" {
				return "u2", true
			}
			return "", false
		},
	}
	c := NewController(hooks, Options{})

	err := c.StartEditing("claim-1")
	assert.ErrorIs(t, err, constants.ErrClaimedByPeer)

	assert.NoError(t, c.StartEditing("claim-2"))
}

func TestApplyChangeBuffersAndEmits(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.hooks(), Options{})
	require.NoError(t, c.StartEditing("claim-1"))

	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"text": "v1"}))
	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"title": "T", "text": "v2"}))

	s, ok := c.Session("claim-1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"text": "v2", "title": "T"}, s.Buffer)
	assert.True(t, s.Dirty)
	assert.Equal(t, 2, s.Unconfirmed)
	assert.Len(t, rec.updated, 2)

	assert.ErrorIs(t, c.ApplyChange("claim-1", nil), constants.ErrEmptyChange)
	assert.ErrorIs(t, c.ApplyChange("claim-9", map[string]any{"x": 1}), constants.ErrNoSession)
}

func TestStopEditingCommitHandsOverBuffer(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.hooks(), Options{})
	require.NoError(t, c.StartEditing("claim-1"))
	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"text": "kept"}))

	require.NoError(t, c.StopEditing("claim-1", true))

	require.Len(t, rec.buffers, 1)
	assert.True(t, rec.saved[0])
	assert.Equal(t, map[string]any{"text": "kept"}, rec.buffers[0])

	_, ok := c.Session("claim-1")
	assert.False(t, ok)
}

func TestStopEditingDiscardDropsBuffer(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.hooks(), Options{})
	require.NoError(t, c.StartEditing("claim-1"))
	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"text": "gone"}))

	require.NoError(t, c.StopEditing("claim-1", false))

	require.Len(t, rec.buffers, 1)
	assert.False(t, rec.saved[0])
	assert.Nil(t, rec.buffers[0])
}

func TestConflictKeepsBufferAndSession(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.hooks(), Options{})
	require.NoError(t, c.StartEditing("claim-1"))
	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"text": "mine"}))

	require.True(t, c.MarkConflicted("claim-1", "u2", "concurrent edit"))

	s, ok := c.Session("claim-1")
	require.True(t, ok, "session stays open pending manual resolution")
	assert.True(t, s.Conflicted)
	assert.Equal(t, map[string]any{"text": "mine"}, s.Buffer, "buffer is not discarded")
	assert.Equal(t, []string{"claim-1"}, rec.conflict)

	assert.False(t, c.MarkConflicted("claim-9", "u2", ""), "no session, no conflict flag")

	require.True(t, c.ClearConflict("claim-1"))
	s, ok = c.Session("claim-1")
	require.True(t, ok)
	assert.False(t, s.Conflicted)
	assert.False(t, c.ClearConflict("claim-9"))
}

func TestAutoFlushCommitsIdleSessions(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	c := NewController(rec.hooks(), Options{
		FlushAfter:    2 * time.Second,
		CheckInterval: 10 * time.Millisecond,
		Clock:         clock,
	})
	require.NoError(t, c.StartEditing("claim-1"))
	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"text": "stale"}))

	mu.Lock()
	now = now.Add(3 * time.Second)
	mu.Unlock()

	c.StartAutoFlush()
	defer c.StopAutoFlush()

	assert.Eventually(t, func() bool {
		_, open := c.Session("claim-1")
		return !open
	}, time.Second, 10*time.Millisecond, "idle dirty session must be committed")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.saved)
	assert.True(t, rec.saved[0])
}

func TestAutoFlushSkipsConflictedSessions(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewController(rec.hooks(), Options{
		FlushAfter:    time.Second,
		CheckInterval: 10 * time.Millisecond,
		Clock:         func() time.Time { return now },
	})
	require.NoError(t, c.StartEditing("claim-1"))
	require.NoError(t, c.ApplyChange("claim-1", map[string]any{"text": "contested"}))
	require.True(t, c.MarkConflicted("claim-1", "u2", ""))

	now = now.Add(time.Minute)
	c.flushIdle()

	_, open := c.Session("claim-1")
	assert.True(t, open, "conflicted sessions wait for resolution")
}

func TestStopAutoFlushCancelsSweeper(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.hooks(), Options{CheckInterval: 5 * time.Millisecond})
	c.StartAutoFlush()
	c.StopAutoFlush()
	c.StopAutoFlush() // idempotent
}
