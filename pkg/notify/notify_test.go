package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPrepends(t *testing.T) {
	d := NewDispatcher()
	d.Push(Notification{Type: "comment", Title: "first"})
	d.Push(Notification{Type: "conflict", Title: "second", Priority: PriorityHigh})

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Title)
	assert.Equal(t, PriorityHigh, list[0].Priority)
	assert.Equal(t, PriorityNormal, list[1].Priority, "missing priority defaults to normal")
	assert.NotEmpty(t, list[0].ID)
}

func TestUnreadCountIsComputed(t *testing.T) {
	d := NewDispatcher()
	a := d.Push(Notification{Title: "a"})
	d.Push(Notification{Title: "b"})
	d.Push(Notification{Title: "c"})

	assert.Equal(t, 3, d.UnreadCount())

	require.True(t, d.MarkRead(a.ID))
	assert.Equal(t, 2, d.UnreadCount())

	assert.False(t, d.MarkRead("nope"))
	assert.Equal(t, 2, d.UnreadCount())
}

func TestClearAll(t *testing.T) {
	d := NewDispatcher()
	d.Push(Notification{Title: "a"})
	d.ClearAll()

	assert.Empty(t, d.List())
	assert.Zero(t, d.UnreadCount())
}
