// Package fakeserver provides an in-process synchronization server used
// by tests: it accepts WebSocket clients, records every envelope they
// send, and can emit scripted events or drop connections to exercise
// reconnection behavior.
package fakeserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/argumap/collab.go/pkg/message"
)

type Server struct {
	httpSrv  *httptest.Server
	upgrader gorilla.Upgrader

	mu       sync.Mutex
	conns    []*gorilla.Conn
	accepted int
	received []message.Envelope
	reject   bool
	authed   []string // Authorization header of each accepted connection
}

// New starts the server. Callers must Close it.
func New() *Server {
	s := &Server{
		upgrader: gorilla.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// endpoint clients should dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http")
}

// Reject makes subsequent upgrade attempts fail, simulating an
// unreachable or refusing server.
func (s *Server) Reject(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.accepted++
	s.authed = append(s.authed, r.Header.Get("Authorization"))
	s.mu.Unlock()

	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env message.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, env)
		s.mu.Unlock()
	}
}

// Emit writes an envelope to every live connection.
func (s *Server) Emit(event message.EventName, payload any) error {
	env, err := message.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		if err := conn.WriteMessage(gorilla.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// Received returns a copy of all envelopes received so far.
func (s *Server) Received() []message.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Envelope, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedEvents returns just the event names, in arrival order.
func (s *Server) ReceivedEvents() []message.EventName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.EventName, 0, len(s.received))
	for _, env := range s.received {
		out = append(out, env.Event)
	}
	return out
}

// Accepted reports how many connections the server has accepted in total.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// AuthHeader returns the Authorization header of the n-th accepted
// connection, or "" if there was none.
func (s *Server) AuthHeader(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= len(s.authed) {
		return ""
	}
	return s.authed[n]
}

// DropConnections abruptly closes every live connection, as a crashed or
// restarting server would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// WaitAccepted polls until the server has accepted at least n connections.
func (s *Server) WaitAccepted(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Accepted() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// WaitReceived polls until at least n envelopes have arrived.
func (s *Server) WaitReceived(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		got := len(s.received)
		s.mu.Unlock()
		if got >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropConnections()
	s.httpSrv.Close()
}
