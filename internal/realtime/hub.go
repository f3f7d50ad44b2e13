// Package realtime is the server side of the live channel: it tracks every
// open connection per user and routes typed events to them.
//
// Connections are local to one instance. Presence is shared through Redis
// sets and every Deliver is also published on a Redis channel so that the
// instance holding the recipient's socket can push it.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/swipecook/internal/app"
	"github.com/oggyb/swipecook/internal/cache"
	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/logger"
	"github.com/oggyb/swipecook/internal/match"
	"github.com/oggyb/swipecook/internal/metrics"
	"github.com/oggyb/swipecook/internal/wire"
)

var ErrTooManyConnections = errors.New("too many live connections for user")

// PartnerLookup resolves a user's partner. match.ErrNotPartnered means none.
type PartnerLookup interface {
	PartnerOf(ctx context.Context, userID string) (string, error)
}

type Options struct {
	WriteWait             time.Duration
	PongWait              time.Duration
	MaxMessageSize        int64
	SendBuffer            int
	PresenceTTL           time.Duration
	Channel               string
	MaxConnectionsPerUser int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WriteWait:             cfg.Live.WriteWait,
		PongWait:              cfg.Live.PongWait,
		MaxMessageSize:        cfg.Live.MaxMessageSize,
		SendBuffer:            cfg.Live.SendBuffer,
		PresenceTTL:           cfg.Live.PresenceTTL,
		Channel:               cfg.Live.BroadcastChannel,
		MaxConnectionsPerUser: cfg.Live.MaxConnectionsPerUser,
	}
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = 90 * time.Second
	}
	if o.Channel == "" {
		o.Channel = "live:broadcast"
	}
	if o.MaxConnectionsPerUser <= 0 {
		o.MaxConnectionsPerUser = 8
	}
	return o
}

// pingPeriod must stay below PongWait.
func (o Options) pingPeriod() time.Duration { return o.PongWait * 9 / 10 }

// broadcastMessage is what travels between instances.
type broadcastMessage struct {
	UserID  string          `json:"userId"`
	PodID   string          `json:"podId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub routes events to live connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[string]*Client // userID -> connID -> client

	cache    *cache.RedisCache
	partners PartnerLookup
	metrics  *metrics.Registry
	log      *slog.Logger
	opts     Options
	podID    string
}

// NewHub builds a hub. With a nil RedisCache in appCtx presence and delivery
// stay local to this instance.
func NewHub(appCtx *app.AppContext, partners PartnerLookup, opts Options) *Hub {
	m := appCtx.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		clients:  make(map[string]map[string]*Client),
		cache:    appCtx.RedisCache,
		partners: partners,
		metrics:  m,
		log:      logger.Component(appCtx.Logger, "live"),
		opts:     opts.withDefaults(),
		podID:    uuid.NewString(),
	}
}

// Register adds a connection. The user's partner hears partnerOnline when
// this is the user's first connection anywhere.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	h.mu.Lock()
	conns := h.clients[c.UserID]
	if len(conns) >= h.opts.MaxConnectionsPerUser {
		h.mu.Unlock()
		h.log.Warn("rejecting connection over per-user limit",
			"user", c.UserID, "conn", c.ID, "limit", h.opts.MaxConnectionsPerUser)
		return fmt.Errorf("%w: limit %d", ErrTooManyConnections, h.opts.MaxConnectionsPerUser)
	}
	if conns == nil {
		conns = make(map[string]*Client)
		h.clients[c.UserID] = conns
	}
	conns[c.ID] = c
	local := len(conns)
	h.mu.Unlock()

	h.metrics.LiveConnections.Inc()

	total := h.addPresence(ctx, c, local)
	h.log.Info("live connection registered", "user", c.UserID, "conn", c.ID, "devices", total)

	if total == 1 {
		h.notifyPartner(ctx, c.UserID, true)
	}
	return nil
}

// Unregister removes a connection and closes its send queue. Safe to call
// more than once.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.UserID]
	if _, found := conns[c.ID]; !ok || !found {
		h.mu.Unlock()
		c.closeSend()
		return
	}
	delete(conns, c.ID)
	local := len(conns)
	if local == 0 {
		delete(h.clients, c.UserID)
	}
	h.mu.Unlock()

	c.closeSend()
	h.metrics.LiveConnections.Dec()

	remaining := h.removePresence(ctx, c, local)
	h.log.Info("live connection closed", "user", c.UserID, "conn", c.ID, "remaining", remaining)

	if remaining == 0 {
		h.notifyPartner(ctx, c.UserID, false)
	}
}

// Deliver pushes ev to every live connection of userID, here and on other
// instances. Best-effort: a full send queue drops the event for that
// connection. Returns the number of local connections that accepted it.
func (h *Hub) Deliver(ctx context.Context, userID string, ev wire.Event) int {
	data, err := ev.Marshal()
	if err != nil {
		h.log.Error("event marshal failed", "type", ev.Type, "err", err)
		return 0
	}

	n := h.sendLocal(userID, ev.Type, data)
	h.publish(ctx, userID, ev.Type, data)
	return n
}

// BroadcastToPair delivers ev to both members of pair.
func (h *Hub) BroadcastToPair(ctx context.Context, pair match.PairKey, ev wire.Event) int {
	n := 0
	for _, id := range pair.Members() {
		n += h.Deliver(ctx, id, ev)
	}
	return n
}

// IsOnline reports whether the user has a live connection on any instance.
func (h *Hub) IsOnline(ctx context.Context, userID string) bool {
	if h.localCount(userID) > 0 {
		return true
	}
	if h.cache == nil {
		return false
	}
	online, err := h.cache.IsOnline(ctx, userID)
	if err != nil {
		h.log.Warn("presence lookup failed", "user", userID, "err", err)
		return false
	}
	return online
}

// Serve runs the cross-instance subscriber until ctx ends, then closes every
// local connection. It is a suture service: a subscriber error returns
// without touching local connections so a restart does not drop live users.
func (h *Hub) Serve(ctx context.Context) error {
	defer func() {
		if ctx.Err() != nil {
			h.closeAll()
		}
	}()

	if h.cache == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	pubsub := h.cache.Client.Subscribe(ctx, h.opts.Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.opts.Channel, err)
	}
	h.log.Info("live broadcast subscription started", "channel", h.opts.Channel, "pod", h.podID[:8])

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("live broadcast subscription closed")
			}
			h.handleBroadcast([]byte(msg.Payload))
		}
	}
}

func (h *Hub) String() string { return "live-hub" }

func (h *Hub) handleBroadcast(data []byte) {
	var msg broadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Warn("bad broadcast message", "err", err)
		return
	}
	if msg.PodID == h.podID {
		return
	}
	h.sendLocal(msg.UserID, msg.Type, msg.Payload)
}

func (h *Hub) publish(ctx context.Context, userID, typ string, data []byte) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(broadcastMessage{UserID: userID, PodID: h.podID, Type: typ, Payload: data})
	if err != nil {
		h.log.Error("broadcast marshal failed", "err", err)
		return
	}
	if err := h.cache.Client.Publish(ctx, h.opts.Channel, b).Err(); err != nil {
		h.log.Warn("broadcast publish failed", "user", userID, "type", typ, "err", err)
	}
}

func (h *Hub) sendLocal(userID, typ string, data []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.trySend(data) {
			sent++
			h.metrics.EventsDelivered.WithLabelValues(typ).Inc()
			continue
		}
		h.metrics.EventsDropped.WithLabelValues(typ).Inc()
		h.log.Warn("send queue full, event dropped", "user", userID, "conn", c.ID, "type", typ)
	}
	return sent
}

func (h *Hub) localCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// addPresence returns the user's connection count across instances, or the
// local count when Redis is unavailable.
func (h *Hub) addPresence(ctx context.Context, c *Client, local int) int {
	if h.cache == nil {
		return local
	}
	n, err := h.cache.AddPresence(ctx, c.UserID, c.ID, h.opts.PresenceTTL)
	if err != nil {
		h.log.Warn("presence add failed", "user", c.UserID, "err", err)
		return local
	}
	return int(n)
}

func (h *Hub) removePresence(ctx context.Context, c *Client, local int) int {
	if h.cache == nil {
		return local
	}
	n, err := h.cache.RemovePresence(ctx, c.UserID, c.ID)
	if err != nil {
		h.log.Warn("presence remove failed", "user", c.UserID, "err", err)
		return local
	}
	return int(n)
}

func (h *Hub) refreshPresence(ctx context.Context, c *Client) {
	if h.cache == nil {
		return
	}
	if err := h.cache.RefreshPresence(ctx, c.UserID, c.ID, h.opts.PresenceTTL); err != nil {
		h.log.Debug("presence refresh failed", "user", c.UserID, "err", err)
	}
}

func (h *Hub) partnerOf(ctx context.Context, userID string) (string, bool) {
	if h.partners == nil {
		return "", false
	}
	partner, err := h.partners.PartnerOf(ctx, userID)
	if err != nil {
		if !errors.Is(err, match.ErrNotPartnered) {
			h.log.Warn("partner lookup failed", "user", userID, "err", err)
		}
		return "", false
	}
	return partner, true
}

func (h *Hub) notifyPartner(ctx context.Context, userID string, online bool) {
	partner, ok := h.partnerOf(ctx, userID)
	if !ok {
		return
	}
	typ := wire.EventPartnerOffline
	if online {
		typ = wire.EventPartnerOnline
	}
	h.Deliver(ctx, partner, wire.Event{Type: typ, Payload: wire.PresencePayload{UserID: userID, Online: online}})
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*Client
	for _, conns := range h.clients {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.closeSend()
	}
}
