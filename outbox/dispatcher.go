package outbox

import (
	"context"
	"log/slog"
	"time"

	"connectly/presence"
)

// Locator resolves a user to a live connection.
type Locator interface {
	Lookup(userID string) (presence.Conn, bool)
}

// OfflineNotifier reaches users with no live connection, e.g. web push.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, ev Event) error
}

// Mirror receives a copy of every dispatched event.
type Mirror interface {
	Publish(ctx context.Context, ev Event) error
}

type Result struct {
	Delivered int
	Dropped   int
}

// Dispatcher delivers events at most once. Failures are logged, never returned.
type Dispatcher struct {
	locator Locator
	offline OfflineNotifier
	mirror  Mirror
	logger  *slog.Logger

	offlineTimeout time.Duration
}

func NewDispatcher(locator Locator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		locator:        locator,
		logger:         logger,
		offlineTimeout: 10 * time.Second,
	}
}

func (d *Dispatcher) WithOffline(n OfflineNotifier) *Dispatcher {
	d.offline = n
	return d
}

func (d *Dispatcher) WithMirror(m Mirror) *Dispatcher {
	d.mirror = m
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) Result {
	var res Result
	for _, ev := range events {
		if d.mirror != nil {
			if err := d.mirror.Publish(ctx, ev); err != nil {
				d.logger.Warn("event mirror publish failed", "type", ev.Type, "error", err)
			}
		}

		conn, ok := d.locator.Lookup(ev.Recipient)
		if !ok {
			res.Dropped++
			d.logger.Debug("recipient offline, event dropped", "type", ev.Type, "recipient", ev.Recipient)
			d.notifyOffline(ctx, ev)
			continue
		}
		if err := conn.Send(ev.Type, ev.Payload); err != nil {
			res.Dropped++
			d.logger.Warn("realtime delivery failed", "type", ev.Type, "recipient", ev.Recipient, "error", err)
			continue
		}
		res.Delivered++
	}
	return res
}

func (d *Dispatcher) notifyOffline(ctx context.Context, ev Event) {
	if d.offline == nil || ev.Type == TypeMessageDeleted {
		return
	}
	// Detached from ctx so the request can finish first.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.offlineTimeout)
	go func() {
		defer cancel()
		if err := d.offline.NotifyOffline(pushCtx, ev); err != nil {
			d.logger.Warn("offline notification failed", "type", ev.Type, "recipient", ev.Recipient, "error", err)
		}
	}()
}
