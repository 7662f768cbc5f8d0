// Package websocket is the realtime gateway. Each upgraded connection
// announces its user with a join frame and is then registered in the
// presence registry until it disconnects.
package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"connectly/outbox"
	"connectly/presence"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TokenVerifier returns the user ID a bearer token was issued to.
type TokenVerifier func(token string) (string, error)

type Manager struct {
	registry *presence.Registry
	verify   TokenVerifier
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
}

// NewManager builds a gateway over registry. verify may be nil, in which
// case ?token= is ignored and every join is trusted. An empty origin list
// or a "*" entry accepts any origin.
func NewManager(registry *presence.Registry, verify TokenVerifier, allowedOrigins []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		registry: registry,
		verify:   verify,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return m
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var subject string
	if token := r.URL.Query().Get("token"); token != "" && m.verify != nil {
		sub, err := m.verify(token)
		if err != nil {
			m.logger.Warn("websocket connection rejected", "reason", "invalid token", "remote", r.RemoteAddr)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		subject = sub
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), conn, m, subject)
	if !m.add(client) {
		client.close()
		return
	}
	m.logger.Debug("websocket connected", "conn", client.id, "clients", m.ConnectedClients())

	go client.writePump()
	go client.readPump()
}

func (m *Manager) add(c *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.clients[c] = struct{}{}
	return true
}

// remove forgets c and releases its presence binding. Safe to call twice.
func (m *Manager) remove(c *Client) {
	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.registry.UnregisterConn(c.id)
	m.logger.Debug("websocket disconnected", "conn", c.id, "user", c.User())
}

func (m *Manager) register(userID string, c *Client) {
	m.registry.Register(userID, c)
	m.logger.Info("user online", "user", userID, "conn", c.id, "online", m.registry.Len())
}

func (m *Manager) ConnectedClients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Close sends a going-away frame to every connection and stops accepting new
// ones. Disconnected clients are unregistered from presence.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	clients := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.close()
		m.remove(c)
	}
}

var (
	ErrClosed     = errors.New("websocket: connection closed")
	ErrBufferFull = errors.New("websocket: send buffer full")
)

// relay forwards a client supplied notification to the recipient's live
// connection as-is. Offline recipients miss it.
func (m *Manager) relay(from *Client, recipient string, payload json.RawMessage) {
	conn, ok := m.registry.Lookup(recipient)
	if !ok {
		m.logger.Debug("relay recipient offline", "from", from.User(), "recipient", recipient)
		return
	}
	if err := conn.Send(outbox.TypeNotification, payload); err != nil {
		m.logger.Debug("relay dropped", "from", from.User(), "recipient", recipient, "error", err)
	}
}
