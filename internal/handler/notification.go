package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/luli-tech/task-manager/internal/hub"
	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/repository"
)

// NotificationHandler bundles dependencies for notification endpoints,
// including the live event stream.
type NotificationHandler struct {
	Notifications *repository.NotificationRepo
	Hub           *hub.Hub
}

func NewNotificationHandler(n *repository.NotificationRepo, h *hub.Hub) *NotificationHandler {
	return &NotificationHandler{Notifications: n, Hub: h}
}

// ----- DTOs -----

type notificationResp struct {
	ID        uint64    `json:"id"`
	TaskID    *uint64   `json:"task_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// streamEvent is the wire shape of one pushed unit on the event
// stream: id, task id (null for non-task events), message, creation
// time.
type streamEvent struct {
	ID        uint64  `json:"id"`
	TaskID    *uint64 `json:"task_id"`
	Message   string  `json:"message"`
	CreatedAt string  `json:"created_at"`
}

type preferencesReq struct {
	PushEnabled  *bool `json:"push_enabled"`
	EmailEnabled *bool `json:"email_enabled"`
}

type preferencesResp struct {
	PushEnabled  bool `json:"push_enabled"`
	EmailEnabled bool `json:"email_enabled"`
}

func toNotificationResp(n model.Notification) notificationResp {
	return notificationResp{
		ID:        n.ID,
		TaskID:    n.TaskID,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// List returns all of the caller's notifications, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.Notifications.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp := make([]notificationResp, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResp(n))
	}
	return c.JSON(http.StatusOK, resp)
}

// MarkRead flags one notification of the caller as read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Notifications.MarkRead(ctx, id, uid); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead flags every unread notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Notifications.MarkAllRead(ctx, uid); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes one notification of the caller.
func (h *NotificationHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Notifications.Delete(ctx, id, uid); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// GetPreferences returns the caller's channel toggles (defaults when
// no row was ever written).
func (h *NotificationHandler) GetPreferences(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Notifications.GetPreferences(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, preferencesResp{PushEnabled: p.PushEnabled, EmailEnabled: p.EmailEnabled})
}

// UpdatePreferences stores the caller's channel toggles. Disabling a
// channel stops delivery attempts only; notification rows keep being
// written.
func (h *NotificationHandler) UpdatePreferences(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	var req preferencesReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Notifications.GetPreferences(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if req.PushEnabled != nil {
		p.PushEnabled = *req.PushEnabled
	}
	if req.EmailEnabled != nil {
		p.EmailEnabled = *req.EmailEnabled
	}
	p.UserID = uid
	if err := h.Notifications.UpsertPreferences(ctx, p); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, preferencesResp{PushEnabled: p.PushEnabled, EmailEnabled: p.EmailEnabled})
}

// Stream subscribes the caller to their live notification feed over
// Server-Sent Events. The connection stays open until the client
// disconnects, the server shuts down, or the subscriber falls behind
// and the hub closes it. Events published before the subscription are
// not replayed: they are already durable rows the client can list.
func (h *NotificationHandler) Stream(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}

	sub := h.Hub.Subscribe(uid)
	defer h.Hub.Unsubscribe(sub)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client went away; the deferred Unsubscribe removes us
			// from the registry.
			return nil
		case n, ok := <-sub.Events():
			if !ok {
				// Hub closed this subscriber: shutdown or overflow.
				return nil
			}
			ev := streamEvent{
				ID:        n.ID,
				TaskID:    n.TaskID,
				Message:   n.Message,
				CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		case <-keepalive.C:
			// SSE comment line keeps intermediaries from timing out
			// an idle stream.
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
