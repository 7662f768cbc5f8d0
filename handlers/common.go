// Package handlers adapts HTTP requests to the services and dispatches the
// realtime events the services return.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"connectly/apperr"
	"connectly/media"
	"connectly/middleware"
	"connectly/models"
	"connectly/outbox"
	"connectly/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestTimeout = 10 * time.Second

// uploadTimeout covers requests that stream a file to the media store.
const uploadTimeout = 30 * time.Second

type Dispatcher interface {
	Dispatch(ctx context.Context, events []outbox.Event) outbox.Result
}

type Subscriptions interface {
	Upsert(ctx context.Context, sub *models.PushSubscription) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type Presence interface {
	Len() int
}

// Deps are the collaborators a Handler needs. Media and Subscriptions are
// optional; the endpoints relying on them answer 503 when unset.
type Deps struct {
	Users         *services.UserService
	Posts         *services.PostService
	Chat          *services.ChatService
	Notifications *services.NotificationService
	Dispatcher    Dispatcher
	Tokens        *middleware.TokenManager
	Presence      Presence
	Media         media.Uploader
	Subscriptions Subscriptions

	VAPIDPublicKey string
	Logger         *slog.Logger
}

type Handler struct {
	Deps
	now func() time.Time
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{Deps: d, now: time.Now}
}

// withTimeout bounds store work by d only. A client that disconnects
// mid-request does not cancel writes already under way.
func withTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), d)
}

// dispatch hands events to the gateway. Delivery problems never fail the
// request that produced them.
func (h *Handler) dispatch(ctx context.Context, events []outbox.Event) {
	if len(events) == 0 || h.Dispatcher == nil {
		return
	}
	h.Dispatcher.Dispatch(ctx, events)
}

// currentUser returns the authenticated caller.
func currentUser(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(middleware.UserID(c))
	if err != nil {
		return primitive.NilObjectID, apperr.Unauthorized("Not authorized")
	}
	return id, nil
}

// viewer returns the caller on optionally authenticated routes, or the zero
// ID for anonymous requests.
func viewer(c *gin.Context) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(middleware.UserID(c))
	if err != nil {
		return primitive.NilObjectID
	}
	return id
}

func pathID(c *gin.Context, name, label string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("Invalid " + label + " ID")
	}
	return id, nil
}

type pageQuery struct {
	Page  int64 `form:"page"`
	Limit int64 `form:"limit"`
}

// paging reads ?page=&limit=. Bad values fall back to the service defaults.
func paging(c *gin.Context) (int64, int64) {
	var q pageQuery
	_ = c.ShouldBindQuery(&q)
	return q.Page, q.Limit
}
