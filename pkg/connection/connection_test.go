package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argumap/collab.go/internal/fakeserver"
	"github.com/argumap/collab.go/pkg/constants"
	"github.com/argumap/collab.go/pkg/message"
)

func TestBackoffDelay(t *testing.T) {
	base := 100 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: 1600 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(base, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestInitializeSendAndAuth(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	m := NewManager(Options{})
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Initialize(context.Background(), "secret-token", server.URL()))
	assert.Equal(t, StatusConnected, m.Status())
	assert.Zero(t, m.Attempts())
	assert.Equal(t, "Bearer secret-token", server.AuthHeader(0))

	// Idempotent while connected.
	require.NoError(t, m.Initialize(context.Background(), "secret-token", server.URL()))
	assert.Equal(t, 1, server.Accepted())

	require.NoError(t, m.Send(message.JoinProject, message.ProjectRef{ProjectID: "p1"}))
	require.True(t, server.WaitReceived(1, time.Second))

	events := server.ReceivedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, message.JoinProject, events[0])

	got := server.Received()[0]
	assert.NotEmpty(t, got.ID, "outbound envelopes carry a message id")
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	m := NewManager(Options{})

	err := m.Send(message.CursorUpdate, message.CursorPayload{ElementID: "claim-1"})
	assert.ErrorIs(t, err, constants.ErrNotConnected)
}

func TestInboundDispatch(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	var mu sync.Mutex
	var got []message.Envelope
	m := NewManager(Options{})
	m.OnMessage(func(env message.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
	})
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))
	require.NoError(t, server.Emit(message.UserJoinedProject, message.PresencePayload{
		UserID: "u2",
		User:   message.User{ID: "u2", Name: "Grace"},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, message.UserJoinedProject, got[0].Event)

	var p message.PresencePayload
	require.NoError(t, got[0].Decode(&p))
	assert.Equal(t, "Grace", p.User.Name)
}

func TestReconnectAfterDrop(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	m := NewManager(Options{ReconnectBase: 20 * time.Millisecond})
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))

	server.DropConnections()

	// A non-manual disconnect moves to reconnecting with attempt 1.
	require.Eventually(t, func() bool {
		s := m.Status()
		return s == StatusReconnecting || s == StatusConnecting || s == StatusConnected
	}, time.Second, 5*time.Millisecond)

	// The backoff timer fires and the channel comes back.
	require.Eventually(t, func() bool {
		return m.Status() == StatusConnected
	}, 2*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, server.Accepted(), 2)
	assert.Zero(t, m.Attempts(), "successful connect resets the attempt counter")
}

func TestDropWhileServerDownCountsAttempts(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	m := NewManager(Options{ReconnectBase: 50 * time.Millisecond, MaxReconnects: 5})
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))

	server.Reject(true)
	server.DropConnections()

	require.Eventually(t, func() bool {
		return m.Status() == StatusReconnecting
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, m.Attempts(), 1)

	// Recovery: let the next attempt through.
	server.Reject(false)
	require.Eventually(t, func() bool {
		return m.Status() == StatusConnected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, m.Attempts())
}

func TestFailedAfterExhaustedAttempts(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	var mu sync.Mutex
	var fatal error
	m := NewManager(Options{ReconnectBase: 5 * time.Millisecond, MaxReconnects: 3})
	m.OnFatal(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		fatal = err
	})

	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))

	server.Reject(true)
	server.DropConnections()

	require.Eventually(t, func() bool {
		return m.Status() == StatusFailed
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatal != nil
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, fatal, constants.ErrReconnectExhausted)
	mu.Unlock()

	// Terminal: no further dial attempts.
	accepted := server.Accepted()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, accepted, server.Accepted())
}

func TestManualInitializeCancelsPendingReconnect(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	m := NewManager(Options{ReconnectBase: 200 * time.Millisecond})
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))

	// The drop arms a 200ms backoff timer.
	server.DropConnections()
	require.Eventually(t, func() bool {
		return m.Status() == StatusReconnecting
	}, time.Second, 5*time.Millisecond)

	// A manual Initialize beats the timer and must disarm it; a stale
	// timer firing over the healthy channel would dial a third connection.
	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))
	require.Equal(t, StatusConnected, m.Status())
	require.Equal(t, 2, server.Accepted())

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 2, server.Accepted(), "stale backoff timer must not dial a duplicate channel")
	assert.Equal(t, StatusConnected, m.Status())
}

func TestStatusCallbacksDeliveredInOrder(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	var mu sync.Mutex
	var seen []Status
	m := NewManager(Options{ReconnectBase: 20 * time.Millisecond})
	m.OnStatusChange(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})
	defer func() { _ = m.Teardown() }()

	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))
	server.DropConnections()
	require.Eventually(t, func() bool {
		return m.Status() == StatusConnected && server.Accepted() == 2
	}, 2*time.Second, 10*time.Millisecond)

	want := []Status{
		StatusConnecting,
		StatusConnected,
		StatusReconnecting,
		StatusConnecting,
		StatusConnected,
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen, "transitions must be observed in the order they happened")
}

func TestTeardownSuppressesReconnect(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()

	m := NewManager(Options{ReconnectBase: 10 * time.Millisecond})
	require.NoError(t, m.Initialize(context.Background(), "", server.URL()))
	require.NoError(t, m.Teardown())

	assert.Equal(t, StatusDisconnected, m.Status())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, server.Accepted(), "no reconnect after explicit teardown")
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestInitialDialFailureSchedulesRetry(t *testing.T) {
	server := fakeserver.New()
	defer server.Close()
	server.Reject(true)

	m := NewManager(Options{ReconnectBase: 20 * time.Millisecond})
	defer func() { _ = m.Teardown() }()

	err := m.Initialize(context.Background(), "", server.URL())
	require.Error(t, err)
	assert.Equal(t, StatusReconnecting, m.Status())
	assert.Equal(t, 1, m.Attempts())

	server.Reject(false)
	require.Eventually(t, func() bool {
		return m.Status() == StatusConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInitializeRequiresEndpoint(t *testing.T) {
	m := NewManager(Options{})
	err := m.Initialize(context.Background(), "", "")
	assert.ErrorIs(t, err, constants.ErrNoEndpoint)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}
