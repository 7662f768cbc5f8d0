package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectly/presence"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, verify TokenVerifier) (*Manager, *presence.Registry, string) {
	t.Helper()
	reg := presence.NewRegistry()
	m := NewManager(reg, verify, nil, nil)
	srv := httptest.NewServer(m)
	t.Cleanup(func() {
		m.Close()
		srv.Close()
	})
	return m, reg, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func write(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinRegistersPresence(t *testing.T) {
	_, reg, url := newTestServer(t, nil)
	conn := dial(t, url)

	write(t, conn, TypeJoin, map[string]string{"userId": "u1"})
	if f := read(t, conn); f.Type != TypeJoined {
		t.Fatalf("expected joined ack, got %s", f.Type)
	}

	live, ok := reg.Lookup("u1")
	if !ok {
		t.Fatal("u1 should be registered")
	}
	if err := live.Send("newMessage", map[string]string{"conversationId": "c1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	f := read(t, conn)
	if f.Type != "newMessage" || !strings.Contains(string(f.Payload), "c1") {
		t.Fatalf("unexpected frame %s %s", f.Type, f.Payload)
	}
}

func TestLatestConnectionWins(t *testing.T) {
	_, reg, url := newTestServer(t, nil)
	first := dial(t, url)
	second := dial(t, url)

	write(t, first, TypeJoin, map[string]string{"userId": "u1"})
	read(t, first)
	write(t, second, TypeJoin, map[string]string{"userId": "u1"})
	read(t, second)

	// Closing the superseded connection must not drop the newer binding.
	first.Close()
	time.Sleep(50 * time.Millisecond)

	live, ok := reg.Lookup("u1")
	if !ok {
		t.Fatal("u1 should still be online")
	}
	if err := live.Send("notification", map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if f := read(t, second); f.Type != "notification" {
		t.Fatalf("expected notification on newest connection, got %s", f.Type)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	m, reg, url := newTestServer(t, nil)
	conn := dial(t, url)
	write(t, conn, TypeJoin, map[string]string{"userId": "u1"})
	read(t, conn)

	conn.Close()
	waitFor(t, func() bool { return reg.Len() == 0 && m.ConnectedClients() == 0 })
}

func TestTokenMustMatchJoin(t *testing.T) {
	verify := func(token string) (string, error) {
		if token == "good" {
			return "u1", nil
		}
		return "", errors.New("bad token")
	}
	_, reg, url := newTestServer(t, verify)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	if err == nil {
		t.Fatal("expected handshake failure for an invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	conn := dial(t, url+"?token=good")
	write(t, conn, TypeJoin, map[string]string{"userId": "u2"})
	if f := read(t, conn); f.Type != TypeError {
		t.Fatalf("expected error frame, got %s", f.Type)
	}
	if reg.Len() != 0 {
		t.Fatal("mismatched join must not register")
	}

	write(t, conn, TypeJoin, map[string]string{"userId": "u1"})
	if f := read(t, conn); f.Type != TypeJoined {
		t.Fatalf("expected joined, got %s", f.Type)
	}
}

func TestMalformedFrames(t *testing.T) {
	_, _, url := newTestServer(t, nil)
	conn := dial(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := read(t, conn); f.Type != TypeError {
		t.Fatalf("expected error frame, got %s", f.Type)
	}

	write(t, conn, TypeJoin, map[string]string{})
	if f := read(t, conn); f.Type != TypeError {
		t.Fatalf("expected error for empty join, got %s", f.Type)
	}

	write(t, conn, "dance", nil)
	if f := read(t, conn); f.Type != TypeError {
		t.Fatalf("expected error for unknown type, got %s", f.Type)
	}
}

func TestSendNotificationRelaysToRecipient(t *testing.T) {
	_, _, url := newTestServer(t, nil)
	alice := dial(t, url)
	bob := dial(t, url)

	write(t, alice, TypeSendNotification, map[string]string{"recipient": "bob", "message": "early"})
	if f := read(t, alice); f.Type != TypeError {
		t.Fatalf("expected error before join, got %s", f.Type)
	}

	write(t, alice, TypeJoin, map[string]string{"userId": "alice"})
	read(t, alice)
	write(t, bob, TypeJoin, map[string]string{"userId": "bob"})
	read(t, bob)

	write(t, alice, TypeSendNotification, map[string]string{"message": "no one"})
	if f := read(t, alice); f.Type != TypeError {
		t.Fatalf("expected error without recipient, got %s", f.Type)
	}

	write(t, alice, TypeSendNotification, map[string]string{"recipient": "bob", "type": "like", "message": "alice liked your post"})
	f := read(t, bob)
	if f.Type != "notification" || !strings.Contains(string(f.Payload), "alice liked your post") {
		t.Fatalf("unexpected frame %s %s", f.Type, f.Payload)
	}
}

func TestConversationRooms(t *testing.T) {
	m, _, url := newTestServer(t, nil)
	conn := dial(t, url)

	write(t, conn, TypeJoinConversation, map[string]string{"conversationId": "c1"})
	if f := read(t, conn); f.Type != TypeJoinedConversation {
		t.Fatalf("expected joinedConversation, got %s", f.Type)
	}

	var client *Client
	m.mu.Lock()
	for c := range m.clients {
		client = c
	}
	m.mu.Unlock()
	if client == nil || !client.InRoom("c1") {
		t.Fatal("client should be in room c1")
	}

	write(t, conn, TypeLeaveConversation, map[string]string{"conversationId": "c1"})
	if f := read(t, conn); f.Type != TypeLeftConversation {
		t.Fatalf("expected leftConversation, got %s", f.Type)
	}
	if client.InRoom("c1") {
		t.Fatal("client should have left room c1")
	}
}

func TestCloseShutsDownConnections(t *testing.T) {
	m, reg, url := newTestServer(t, nil)
	conn := dial(t, url)
	write(t, conn, TypeJoin, map[string]string{"userId": "u1"})
	read(t, conn)

	m.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("registry should be empty after Close")
	}

	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("new connections must be refused after Close")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	_, reg, url := newTestServer(t, nil)
	conn := dial(t, url)
	write(t, conn, TypeJoin, map[string]string{"userId": "u1"})
	read(t, conn)

	live, _ := reg.Lookup("u1")
	c := live.(*Client)
	c.close()
	if err := c.Send("notification", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
