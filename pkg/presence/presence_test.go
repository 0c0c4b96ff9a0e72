package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activity(a Activity) *Activity { return &a }

func TestSetActiveUsersReplacesRoster(t *testing.T) {
	tr := NewTracker()
	tr.Join(User{ID: "stale", Name: "Old"})

	tr.SetActiveUsers([]User{
		{ID: "u1", Name: "Ada"},
		{ID: "u2", Name: "Grace"},
	})

	list := tr.List()
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].User.ID)
	assert.Equal(t, ActivityViewing, list[0].Activity)

	_, ok := tr.Get("stale")
	assert.False(t, ok)
}

func TestUpsertUnknownUserIsNoOp(t *testing.T) {
	tr := NewTracker()

	ok := tr.Upsert("ghost", Update{Activity: activity(ActivityEditing)})
	assert.False(t, ok)
	assert.Empty(t, tr.List())
}

func TestUpsertMergesAndRefreshesLastUpdate(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	tr.Join(User{ID: "u1", Name: "Ada", Color: "#f00"})

	now = now.Add(3 * time.Second)
	ok := tr.Upsert("u1", Update{
		Activity: activity(ActivityEditing),
		Cursor:   &Cursor{ElementID: "claim-7", X: 10, Y: 20},
	})
	require.True(t, ok)

	p, _ := tr.Get("u1")
	assert.Equal(t, ActivityEditing, p.Activity)
	assert.Equal(t, "claim-7", p.Cursor.ElementID)
	assert.Equal(t, "Ada", p.User.Name, "untouched fields survive a partial update")
	assert.Equal(t, now, p.LastUpdate)
}

func TestEditorOf(t *testing.T) {
	tr := NewTracker()
	tr.Join(User{ID: "u1"})
	tr.Join(User{ID: "u2"})

	editing := "claim-1"
	tr.Upsert("u2", Update{Activity: activity(ActivityEditing), EditingID: &editing})

	p, ok := tr.EditorOf("claim-1")
	require.True(t, ok)
	assert.Equal(t, "u2", p.User.ID)

	_, ok = tr.EditorOf("claim-2")
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	tr := NewTracker()
	tr.Join(User{ID: "u1"})
	tr.Remove("u1")

	_, ok := tr.Get("u1")
	assert.False(t, ok)
}

func TestEvictStale(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })

	tr.Join(User{ID: "old"})
	now = now.Add(time.Minute)
	tr.Join(User{ID: "fresh"})

	evicted := tr.EvictStale(30 * time.Second)
	assert.Equal(t, []string{"old"}, evicted)

	_, ok := tr.Get("fresh")
	assert.True(t, ok)
}
