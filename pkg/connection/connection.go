// Package connection owns the single live bidirectional channel to the
// synchronization server: it establishes, authenticates, tears down and
// automatically re-establishes the underlying WebSocket.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/argumap/collab.go/internal/rand"
	"github.com/argumap/collab.go/pkg/constants"
	"github.com/argumap/collab.go/pkg/logger"
	"github.com/argumap/collab.go/pkg/message"
)

// DefaultDialer is the gorilla dialer used unless Options.Dialer is set.
// It matches the default gorilla dialer with compression enabled and the
// json subprotocol announced.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"json"},
}

// Handler receives every inbound envelope, in connection read order.
type Handler func(env message.Envelope)

// Options tune the Manager. Zero fields fall back to shared defaults.
type Options struct {
	ReconnectBase     time.Duration
	MaxReconnects     int
	HeartbeatInterval time.Duration
	Dialer            *gorilla.Dialer
	Logger            logger.Logger
}

// Manager drives the channel lifecycle:
//
//	disconnected -> connecting -> connected
//
// On a non-manual drop the manager moves to reconnecting and retries with
// exponential backoff (base * 2^(attempt-1)). Once the attempt cap is
// reached it enters the terminal failed state and reports a fatal error
// instead of retrying forever. A successful connect resets the counter.
type Manager struct {
	mu   sync.Mutex
	conn *gorilla.Conn

	status   Status
	attempts int
	latency  time.Duration
	lastPing time.Time

	endpoint   string
	credential string
	manual     bool // teardown requested; suppresses auto-reconnect

	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}

	base          time.Duration
	maxReconnects int
	heartbeat     time.Duration
	dialer        *gorilla.Dialer
	log           logger.Logger

	handler  Handler
	onStatus func(Status)
	onFatal  func(error)

	statusQueue    []Status
	statusDraining bool

	writeMu sync.Mutex
}

// NewManager creates a Manager in the disconnected state.
func NewManager(opts Options) *Manager {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = constants.DefaultReconnectBase
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = constants.DefaultMaxReconnectAttempts
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Manager{
		status:        StatusDisconnected,
		base:          opts.ReconnectBase,
		maxReconnects: opts.MaxReconnects,
		heartbeat:     opts.HeartbeatInterval,
		dialer:        opts.Dialer,
		log:           opts.Logger,
	}
}

// OnMessage registers the inbound dispatch handler. Must be called before
// Initialize.
func (m *Manager) OnMessage(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// OnStatusChange registers a lifecycle listener.
func (m *Manager) OnStatusChange(f func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = f
}

// OnFatal registers the listener for the terminal failed condition.
func (m *Manager) OnFatal(f func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFatal = f
}

// Initialize opens the channel. Idempotent if already connected.
// On a failed initial dial the manager schedules reconnection with
// backoff and still returns the dial error, so the caller can surface it.
func (m *Manager) Initialize(ctx context.Context, credential, endpoint string) error {
	if endpoint == "" {
		return constants.ErrNoEndpoint
	}

	m.mu.Lock()
	if m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	// A manual Initialize supersedes any armed backoff timer; a stale
	// timer firing later would dial a second channel over this one.
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.endpoint = endpoint
	m.credential = credential
	m.manual = false
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()

	if err := m.dial(ctx); err != nil {
		m.mu.Lock()
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return fmt.Errorf("connection: initial dial: %w", err)
	}
	return nil
}

// Teardown closes the channel, cancels any pending reconnect timer and
// suppresses auto-reconnect.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	m.manual = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Best effort: tell the server we are going away, then close locally
	// regardless so no resources leak on our side.
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), deadline); err != nil {
		m.log.Warn("failed to write close message", "error", err)
	}
	return conn.Close()
}

// Send is fire-and-forget: when the channel is not connected the message
// is dropped and a warning surfaced, with no queueing or per-message retry.
func (m *Manager) Send(event message.EventName, payload any) error {
	m.mu.Lock()
	conn := m.conn
	status := m.status
	m.mu.Unlock()

	if status != StatusConnected || conn == nil {
		m.log.Warn("message dropped, channel not connected", "event", event, "status", status.String())
		return constants.ErrNotConnected
	}

	env, err := message.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	env.ID = rand.NewMessageID(constants.MessageIDLength)

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("connection: marshal envelope: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(gorilla.TextMessage, data)
}

// Status reports the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Attempts reports the current reconnection attempt counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Latency reports the last heartbeat round-trip time.
func (m *Manager) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency
}

// dial performs one connection attempt and, on success, installs the new
// conn, resets the attempt counter and starts the read loop and heartbeat.
func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	endpoint := m.endpoint
	credential := m.credential
	m.mu.Unlock()

	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	conn, res, err := m.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return err
	}
	if res != nil {
		defer res.Body.Close()
	}

	m.mu.Lock()
	if m.manual {
		// Teardown raced the dial; drop the fresh connection.
		m.mu.Unlock()
		return conn.Close()
	}
	if m.conn != nil {
		// A concurrent dial already installed a channel; keep it.
		m.mu.Unlock()
		return conn.Close()
	}
	m.conn = conn
	m.attempts = 0
	conn.SetPongHandler(func(string) error {
		m.mu.Lock()
		if !m.lastPing.IsZero() {
			m.latency = time.Since(m.lastPing)
		}
		m.mu.Unlock()
		return nil
	})
	m.startHeartbeatLocked(conn)
	m.setStatusLocked(StatusConnected)
	m.mu.Unlock()

	go m.readLoop(conn)

	m.log.Info("channel connected", "endpoint", endpoint)
	return nil
}

// readLoop reads frames until the connection drops. Inbound envelopes are
// dispatched in read order on this goroutine, so handlers see a single
// logical thread of mutation.
func (m *Manager) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		var env message.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Malformed frames fail loudly; silent drops would hide
			// protocol breakage.
			m.log.Error("malformed inbound frame", "error", err)
			continue
		}

		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(env)
		}
	}
}

func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	m.stopHeartbeatLocked()
	m.conn = nil

	if m.manual {
		m.mu.Unlock()
		return
	}

	m.log.Warn("channel dropped", "error", err)
	m.scheduleReconnectLocked()
	m.mu.Unlock()
}

// scheduleReconnectLocked advances the attempt counter and either arms the
// backoff timer or, past the cap, enters the terminal failed state.
func (m *Manager) scheduleReconnectLocked() {
	m.attempts++
	if m.attempts > m.maxReconnects {
		m.setStatusLocked(StatusFailed)
		onFatal := m.onFatal
		m.log.Error("reconnection attempts exhausted", "attempts", m.maxReconnects)
		if onFatal != nil {
			go onFatal(constants.ErrReconnectExhausted)
		}
		return
	}

	delay := backoffDelay(m.base, m.attempts)
	m.setStatusLocked(StatusReconnecting)
	m.log.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay)
	m.reconnectTimer = time.AfterFunc(delay, m.attemptReconnect)
}

func (m *Manager) attemptReconnect() {
	m.mu.Lock()
	// Nothing to do if reconnection was aborted, already succeeded, or is
	// in flight on another goroutine.
	if m.manual || m.status == StatusFailed ||
		m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.setStatusLocked(StatusConnecting)
	timeout := m.dialer.HandshakeTimeout
	m.mu.Unlock()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := m.dial(ctx); err != nil {
		m.log.Warn("reconnect attempt failed", "error", err)
		m.mu.Lock()
		m.scheduleReconnectLocked()
		m.mu.Unlock()
	}
}

func (m *Manager) startHeartbeatLocked(conn *gorilla.Conn) {
	stop := make(chan struct{})
	m.heartbeatStop = stop
	interval := m.heartbeat

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				m.lastPing = time.Now()
				m.mu.Unlock()
				deadline := time.Now().Add(interval / 2)
				if err := conn.WriteControl(gorilla.PingMessage, nil, deadline); err != nil {
					m.log.Warn("heartbeat write failed", "error", err)
					return
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// setStatusLocked records the transition and queues it for the listener.
// Callbacks are delivered off the manager's goroutines so listeners may
// call back into the manager, but by a single drainer so transitions
// arrive in the order they happened.
func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	if m.onStatus == nil {
		return
	}
	m.statusQueue = append(m.statusQueue, s)
	if !m.statusDraining {
		m.statusDraining = true
		go m.drainStatusQueue()
	}
}

func (m *Manager) drainStatusQueue() {
	for {
		m.mu.Lock()
		if len(m.statusQueue) == 0 {
			m.statusDraining = false
			m.mu.Unlock()
			return
		}
		s := m.statusQueue[0]
		m.statusQueue = m.statusQueue[1:]
		cb := m.onStatus
		m.mu.Unlock()

		if cb != nil {
			cb(s)
		}
	}
}

// backoffDelay computes base * 2^(attempt-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << uint(attempt-1)
}
