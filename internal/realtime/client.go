package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oggyb/swipecook/internal/wire"
)

// Client is one live connection.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	hub  *Hub
	log  *slog.Logger

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, userID string, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		hub:    hub,
		log:    hub.log.With("user", userID, "conn", id),
		send:   make(chan []byte, hub.opts.SendBuffer),
	}
}

// trySend queues data without blocking. False when the queue is full or closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

func (c *Client) sendEvent(ev wire.Event) {
	data, err := ev.Marshal()
	if err != nil {
		c.log.Error("event marshal failed", "type", ev.Type, "err", err)
		return
	}
	if !c.trySend(data) {
		c.hub.metrics.EventsDropped.WithLabelValues(ev.Type).Inc()
		c.log.Warn("send queue full, reply dropped", "type", ev.Type)
		return
	}
	c.hub.metrics.EventsDelivered.WithLabelValues(ev.Type).Inc()
}

func (c *Client) sendError(code, msg string) {
	c.sendEvent(wire.Event{Type: wire.EventError, Payload: wire.ErrorPayload{Code: code, Message: msg}})
}

// reject writes an error frame and closes a connection that was never registered.
func (c *Client) reject(code, msg string) {
	defer c.conn.Close()

	data, err := wire.Event{Type: wire.EventError, Payload: wire.ErrorPayload{Code: code, Message: msg}}.Marshal()
	if err != nil {
		return
	}
	deadline := time.Now().Add(c.hub.opts.WriteWait)
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), deadline)
}

// readPump owns the read side until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(context.WithoutCancel(ctx), c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.hub.refreshPresence(ctx, c)
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Warn("live connection closed unexpectedly", "err", err)
			}
			return
		}

		env, err := wire.Decode(message)
		if err != nil || env.Type == "" {
			c.sendError("bad_message", "message must be a JSON object with a type")
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *Client) handle(ctx context.Context, env wire.Envelope) {
	h := c.hub

	switch env.Type {
	case wire.EventHeartbeat:
		h.refreshPresence(ctx, c)

	case wire.EventCheckPartnerStatus:
		partner, ok := h.partnerOf(ctx, c.UserID)
		if !ok {
			c.sendError("not_partnered", "user has no partner")
			return
		}
		online := h.IsOnline(ctx, partner)
		typ := wire.EventPartnerOffline
		if online {
			typ = wire.EventPartnerOnline
		}
		c.sendEvent(wire.Event{Type: typ, Payload: wire.PresencePayload{UserID: partner, Online: online}})

	case wire.EventActivity:
		var act wire.ActivityPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &act); err != nil {
				c.sendError("bad_message", "activity payload is not valid")
				return
			}
		}
		partner, ok := h.partnerOf(ctx, c.UserID)
		if !ok {
			c.sendError("not_partnered", "user has no partner")
			return
		}
		act.UserID = c.UserID
		h.Deliver(ctx, partner, wire.Event{Type: wire.EventPartnerActivity, Payload: act})

	default:
		c.sendError("unknown_type", "unsupported message type "+env.Type)
	}
}

// writePump owns the write side; it exits when the send queue is closed.
func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
