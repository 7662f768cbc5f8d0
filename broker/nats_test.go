package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"connectly/outbox"

	"github.com/nats-io/nats.go"
)

type recorder struct {
	msgs []*nats.Msg
	err  error
}

func (r *recorder) PublishMsg(m *nats.Msg) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func TestPublishUsesTypedSubject(t *testing.T) {
	rec := &recorder{}
	p := &NatsPublisher{conn: rec, prefix: DefaultSubjectPrefix}

	ev := outbox.MessageDeleted("u2", "m1", "c1")
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(rec.msgs))
	}
	msg := rec.msgs[0]
	if msg.Subject != "connectly.events.messageDeleted" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if msg.Header.Get("Recipient") != "u2" {
		t.Fatalf("recipient header = %q", msg.Header.Get("Recipient"))
	}

	var body struct {
		Recipient string `json:"recipient"`
		Type      string `json:"type"`
		Payload   struct {
			MessageID string `json:"messageId"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Type != outbox.TypeMessageDeleted || body.Payload.MessageID != "m1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestPublishWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	p := &NatsPublisher{conn: &recorder{err: boom}, prefix: "x"}
	if err := p.Publish(context.Background(), outbox.Event{Type: "t"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
