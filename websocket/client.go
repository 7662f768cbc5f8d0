package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 4096
	sendBufferSize = 256
)

// Frame types exchanged with browsers, besides the outbox event types.
const (
	TypeJoin               = "join"
	TypeJoinConversation   = "joinConversation"
	TypeLeaveConversation  = "leaveConversation"
	TypeSendNotification   = "sendNotification"
	TypeJoined             = "joined"
	TypeJoinedConversation = "joinedConversation"
	TypeLeftConversation   = "leftConversation"
	TypeError              = "error"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type joinPayload struct {
	UserID string `json:"userId"`
}

type roomPayload struct {
	ConversationID string `json:"conversationId"`
}

type relayPayload struct {
	Recipient string `json:"recipient"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Client is one upgraded connection. It satisfies presence.Conn.
type Client struct {
	id      string
	conn    *websocket.Conn
	manager *Manager
	subject string // token subject, empty when the upgrade carried no token

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	userID string
	rooms  map[string]struct{}
}

func newClient(id string, conn *websocket.Conn, m *Manager, subject string) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		manager: m,
		subject: subject,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		rooms:   make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// InRoom reports whether the client joined the conversation's room.
func (c *Client) InRoom(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[conversationID]
	return ok
}

// Send queues one frame without blocking.
func (c *Client) Send(eventType string, payload any) error {
	data, err := json.Marshal(outgoing{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.manager.remove(c)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warn("websocket read error", "conn", c.id, "error", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) handle(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.fail("malformed frame")
		return
	}

	switch env.Type {
	case TypeJoin:
		var p joinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID == "" {
			c.fail("join requires a userId")
			return
		}
		if c.subject != "" && p.UserID != c.subject {
			c.fail("userId does not match token")
			return
		}
		c.mu.Lock()
		c.userID = p.UserID
		c.mu.Unlock()
		c.manager.register(p.UserID, c)
		c.reply(TypeJoined, joinPayload{UserID: p.UserID})

	case TypeJoinConversation, TypeLeaveConversation:
		var p roomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.ConversationID == "" {
			c.fail(env.Type + " requires a conversationId")
			return
		}
		c.mu.Lock()
		if env.Type == TypeJoinConversation {
			c.rooms[p.ConversationID] = struct{}{}
		} else {
			delete(c.rooms, p.ConversationID)
		}
		c.mu.Unlock()
		if env.Type == TypeJoinConversation {
			c.reply(TypeJoinedConversation, p)
		} else {
			c.reply(TypeLeftConversation, p)
		}

	case TypeSendNotification:
		var p relayPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Recipient == "" {
			c.fail("sendNotification requires a recipient")
			return
		}
		if c.User() == "" {
			c.fail("join before sending notifications")
			return
		}
		c.manager.relay(c, p.Recipient, env.Payload)

	default:
		c.fail("unknown frame type " + env.Type)
	}
}

func (c *Client) reply(eventType string, payload any) {
	if err := c.Send(eventType, payload); err != nil {
		c.manager.logger.Debug("websocket reply dropped", "conn", c.id, "type", eventType, "error", err)
	}
}

func (c *Client) fail(message string) {
	c.reply(TypeError, errorPayload{Message: message})
}
