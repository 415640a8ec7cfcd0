package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 256
)

// Handler streams a chat room to a websocket client and accepts sends
// from it.
type Handler struct {
	messages     domain.MessageRepository
	hub          *Hub
	logger       *slog.Logger
	allowedHosts []string
	upgrader     websocket.Upgrader
}

// NewHandler creates a websocket handler. messages should publish inserts
// on hub (see PublishingStore) so senders receive their own echo.
// Browsers may connect from the request's own host or from any of
// allowedHosts; clients that send no Origin are always accepted.
func NewHandler(messages domain.MessageRepository, hub *Hub, logger *slog.Logger, allowedHosts ...string) *Handler {
	h := &Handler{
		messages:     messages,
		hub:          hub,
		logger:       logger,
		allowedHosts: allowedHosts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		h.logger.Warn("websocket origin rejected", "origin", origin, "error", err)
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, host := range h.allowedHosts {
		if strings.EqualFold(u.Hostname(), host) {
			return true
		}
	}
	h.logger.Warn("websocket origin rejected", "origin", origin)
	return false
}

// connection is one websocket client attached to a chat room.
type connection struct {
	conn   *websocket.Conn
	room   *domain.ChatRoom
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	// opening is set while the room history is streamed; enqueue then
	// waits for the writer instead of disconnecting.
	opening   atomic.Bool
	dead      atomic.Bool
	closeOnce sync.Once
}

// ServeRoom upgrades the request and serves roomID to viewerID until the
// client disconnects. Authorization is the caller's job.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request, roomID, viewerID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	logger := h.logger.With("room_id", roomID, "viewer_id", viewerID)
	c := &connection{
		conn:   conn,
		room:   domain.NewChatRoom(roomID, viewerID, h.messages, h.hub, logger),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	c.room.OnMerge = func(m domain.Message) {
		c.enqueue(Event{Type: EventMessageInsert, Message: &m})
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go c.writePump()

	c.opening.Store(true)
	n := c.room.Open(ctx)
	c.opening.Store(false)
	if n.Kind != domain.NoticeLoaded {
		c.enqueue(Event{Type: EventNotice, Notice: &n})
	}
	logger.Info("chat client connected", "history", c.room.Len())

	c.readPump(ctx)

	if err := c.room.Close(); err != nil {
		logger.Warn("chat unsubscribe failed", "error", err)
	}
	close(c.done)
	logger.Info("chat client disconnected")
}

func (c *connection) enqueue(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}
	if c.dead.Load() {
		return
	}
	select {
	case <-c.done:
		return
	case c.send <- b:
		return
	default:
	}

	if c.opening.Load() {
		t := time.NewTimer(writeWait)
		defer t.Stop()
		select {
		case <-c.done:
			return
		case c.send <- b:
			return
		case <-t.C:
		}
	}

	// The client reconnects and reloads history instead of missing events.
	c.logger.Warn("chat client too slow, closing connection", "type", ev.Type)
	c.close()
}

// close shuts the socket down once; readPump then fails and ServeRoom
// releases the room.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.dead.Store(true)
		c.conn.Close()
	})
}

// readPump handles frames from the client until the connection fails.
func (c *connection) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		ev, err := parseEvent(data)
		if err != nil {
			c.logger.Warn("invalid chat frame", "error", err)
			continue
		}
		if ev.Type != EventMessageSend {
			continue
		}

		draft, n := c.room.Send(ctx, ev.Content)
		if n.IsError() || n.Kind == domain.NoticeNoSession {
			c.enqueue(Event{Type: EventSendFailed, Draft: draft, Notice: &n})
		}
	}
}

// writePump writes queued events and keeps the connection alive with pings.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
