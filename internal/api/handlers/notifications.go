package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	apierrors "github.com/narvanalabs/locum/internal/api/errors"
	"github.com/narvanalabs/locum/internal/models"
	"github.com/narvanalabs/locum/internal/notify"
)

// Live stream timings. A client that lets streamPongWait pass without a
// pong or a message is dropped; pings go out well inside that window.
const (
	streamWriteWait    = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingInterval = streamPongWait / 2
	streamReadLimit    = 512
)

// NotificationHandler serves the caller's inbox and its live stream.
type NotificationHandler struct {
	inbox    *notify.Inbox
	broker   *notify.Broker
	upgrader websocket.Upgrader
	logger   *slog.Logger

	pingInterval time.Duration
	pongWait     time.Duration

	quit     chan struct{}
	quitOnce sync.Once
}

// NewNotificationHandler creates a new notification handler. broker may be
// nil, in which case the live stream is unavailable.
func NewNotificationHandler(inbox *notify.Inbox, broker *notify.Broker, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		inbox:  inbox,
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:       logger,
		pingInterval: streamPingInterval,
		pongWait:     streamPongWait,
		quit:         make(chan struct{}),
	}
}

// List handles GET /v1/notifications?unread=true&type=...&before=RFC3339&limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	filter, fields := parseFilter(r)
	if fields.HasErrors() {
		apierrors.WriteErrorWithRequestID(w, fields.ToAPIError(), chimiddleware.GetReqID(r.Context()))
		return
	}

	list, err := h.inbox.List(r.Context(), a, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func parseFilter(r *http.Request) (models.NotificationFilter, apierrors.ValidationErrors) {
	q := r.URL.Query()
	var (
		filter models.NotificationFilter
		fields apierrors.ValidationErrors
	)
	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			fields.Add("unread", "must be a boolean")
		}
		filter.UnreadOnly = unread
	}
	filter.Type = models.NotificationType(q.Get("type"))
	if v := q.Get("before"); v != "" {
		before, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			fields.Add("before", "must be an RFC 3339 timestamp")
		} else {
			filter.Before = &before
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			fields.Add("limit", "must be a positive integer")
		}
		filter.Limit = limit
	}
	return filter, fields
}

// UnreadCount handles GET /v1/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := h.inbox.UnreadCount(r.Context(), a)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

// MarkRead handles POST /v1/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := h.inbox.MarkRead(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// MarkAllRead handles POST /v1/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := h.inbox.MarkAllRead(r.Context(), a)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// Delete handles DELETE /v1/notifications/{id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.inbox.Delete(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /v1/notifications/ws. Each committed notification for
// the caller is written as a JSON text message. Client messages are ignored.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if h.broker == nil {
		apierrors.WriteErrorWithRequestID(w,
			apierrors.NewNotFoundError("live notifications are not enabled"),
			chimiddleware.GetReqID(r.Context()))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.broker.Subscribe(r.Context(), a.ID)
	defer h.broker.Unsubscribe(sub)
	h.logger.Debug("notification stream opened", "actor_id", a.ID, "subscriber_id", sub.ID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(streamReadLimit)
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-h.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case n, ok := <-sub.Ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// CloseStreams ends every open live stream. http.Server.Shutdown does not
// track hijacked connections.
func (h *NotificationHandler) CloseStreams() {
	h.quitOnce.Do(func() { close(h.quit) })
}
