// Package liveclient is the client side of the live channel: one Manager per
// process owns the connection, reconnects with exponential backoff and
// dispatches inbound events to subscribed handlers.
package liveclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/wire"
)

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateFailed       State = "FAILED"
)

// Lifecycle events raised by the manager itself. Domain events keep the
// type the server sent (wire.EventNewMatch, wire.EventPartnerOnline, ...).
const (
	EventStateChange                 = "stateChange"
	EventConnected                   = "connected"
	EventDisconnected                = "disconnected"
	EventError                       = wire.EventError
	EventMaxReconnectAttemptsReached = "maxReconnectAttemptsReached"
)

var (
	// ErrAttemptsExhausted is returned by Connect while FAILED until
	// ResetReconnectAttempts is called.
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
	ErrClosed            = errors.New("manager closed")
)

// Event is what handlers receive.
type Event struct {
	Type string
	// Payload is the raw server payload for domain events.
	Payload json.RawMessage
	// State and Prev are set for stateChange.
	State State
	Prev  State
	Err   error
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

type Handler func(Event)

// SubscriptionID identifies one On registration.
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Handler
}

// Config drives the manager.
type Config struct {
	URL string
	// Token is sent as a Bearer credential. UserID is sent as X-User-ID for
	// servers running without token verification.
	Token  string
	UserID string

	MaxReconnectAttempts int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	ConnectTimeout       time.Duration
	// CooldownAfterFailure > 0 resets the attempt counter and reconnects that
	// long after entering FAILED. Zero leaves recovery to the caller.
	CooldownAfterFailure time.Duration
}

func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		URL:                  cfg.LiveClient.URL,
		MaxReconnectAttempts: cfg.LiveClient.MaxReconnectAttempts,
		InitialDelay:         cfg.LiveClient.InitialDelay,
		MaxDelay:             cfg.LiveClient.MaxDelay,
		ConnectTimeout:       cfg.LiveClient.ConnectTimeout,
		CooldownAfterFailure: cfg.LiveClient.CooldownAfterFailure,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

type Option func(*Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager owns one live connection. All methods are safe to call from any
// goroutine; handlers run synchronously on the goroutine that raised the
// event and must not block.
type Manager struct {
	cfg    Config
	dialer Dialer
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	attempts  int
	conn      Conn
	gen       uint64
	timer     *time.Timer
	backoff   *backoff.ExponentialBackOff
	closed    bool
	handlerMu sync.RWMutex
	handlers  map[string][]subscription
	nextSub   SubscriptionID

	writeMu sync.Mutex
}

func New(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		dialer:   NewWebSocketDialer(),
		log:      slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateDisconnected,
		backoff:  b,
		handlers: make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("subsystem", "liveclient")
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts is the number of consecutive failed connection attempts.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// On subscribes fn to an event type. Handlers for one type run in
// subscription order.
func (m *Manager) On(event string, fn Handler) SubscriptionID {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.nextSub++
	m.handlers[event] = append(m.handlers[event], subscription{id: m.nextSub, fn: fn})
	return m.nextSub
}

// Off removes a subscription. Unknown ids are ignored.
func (m *Manager) Off(event string, id SubscriptionID) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	subs := m.handlers[event]
	for i, s := range subs {
		if s.id == id {
			m.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Connect opens the connection in the background.
//
// Behavior:
//   - CONNECTED or CONNECTING → no-op.
//   - RECONNECTING → the pending retry is replaced by an immediate attempt.
//   - Attempt ceiling reached → ErrAttemptsExhausted until
//     ResetReconnectAttempts, even after a Disconnect.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	// Disconnect leaves FAILED for DISCONNECTED but keeps the counter, so
	// the ceiling is checked on the counter rather than the state.
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.mu.Unlock()
		return ErrAttemptsExhausted
	}

	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	events := m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.emitAll(events)
	go m.attempt(gen)
	return nil
}

// Disconnect closes the connection and cancels any pending retry. The
// attempt counter is left alone.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	conn := m.conn
	m.conn = nil
	wasConnected := m.state == StateConnected
	events := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		m.closeConn(conn)
	}
	if wasConnected {
		events = append(events, Event{Type: EventDisconnected})
	}
	m.emitAll(events)
}

// Close tears the manager down for good.
func (m *Manager) Close() {
	m.Disconnect()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}

// ResetReconnectAttempts zeroes the attempt counter without changing state.
func (m *Manager) ResetReconnectAttempts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = 0
	m.backoff.Reset()
}

// Send writes one {type, payload} message. It returns false, without
// queueing, unless CONNECTED.
func (m *Manager) Send(eventType string, payload any) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected && conn != nil
	m.mu.Unlock()
	if !connected {
		return false
	}

	data, err := wire.Event{Type: eventType, Payload: payload}.Marshal()
	if err != nil {
		m.log.Warn("outbound marshal failed", "type", eventType, "err", err)
		return false
	}

	m.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		m.log.Debug("send failed", "type", eventType, "err", err)
		return false
	}
	return true
}

// CheckPartnerStatus asks the server for the partner's presence; the answer
// arrives as partnerOnline or partnerOffline.
func (m *Manager) CheckPartnerStatus() bool {
	return m.Send(wire.EventCheckPartnerStatus, nil)
}

// BroadcastActivity forwards an ephemeral activity to the partner.
func (m *Manager) BroadcastActivity(activity string, data any) bool {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return false
		}
		raw = b
	}
	return m.Send(wire.EventActivity, wire.ActivityPayload{Activity: activity, Data: raw})
}

func (m *Manager) Heartbeat() bool {
	return m.Send(wire.EventHeartbeat, nil)
}

func (m *Manager) attempt(gen uint64) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
	conn, err := m.dialer.Dial(ctx, m.cfg.URL, m.header())
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		events := m.failLocked(gen, err)
		m.mu.Unlock()
		m.emitAll(events)
		return
	}

	m.conn = conn
	m.attempts = 0
	m.backoff.Reset()
	events := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.log.Info("live channel connected", "url", m.cfg.URL)
	events = append(events, Event{Type: EventConnected})
	m.emitAll(events)

	go m.readLoop(gen, conn)
}

// failLocked records a failed attempt and either schedules the next one or
// gives up.
func (m *Manager) failLocked(gen uint64, err error) []Event {
	m.attempts++
	events := []Event{{Type: EventError, Err: err}}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.log.Warn("live channel giving up", "attempts", m.attempts, "err", err)
		events = append(events, m.setStateLocked(StateFailed)...)
		events = append(events, Event{Type: EventMaxReconnectAttemptsReached, Err: err})
		if d := m.cfg.CooldownAfterFailure; d > 0 {
			m.timer = time.AfterFunc(d, func() { m.recover(gen) })
		}
		return events
	}

	delay := m.backoff.NextBackOff()
	m.log.Debug("live channel retry scheduled", "attempt", m.attempts, "delay", delay, "err", err)
	events = append(events, m.setStateLocked(StateReconnecting)...)
	m.timer = time.AfterFunc(delay, func() { m.retry(gen) })
	return events
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	events := m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.emitAll(events)
	m.attempt(gen)
}

// recover is the cooldown path out of FAILED.
func (m *Manager) recover(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateFailed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.ResetReconnectAttempts()
	if err := m.Connect(); err != nil {
		m.log.Debug("cooldown reconnect skipped", "err", err)
	}
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, conn, err)
			return
		}

		env, err := wire.Decode(data)
		if err != nil || env.Type == "" {
			m.emit(Event{Type: EventError, Err: fmt.Errorf("malformed message: %w", err)})
			continue
		}
		m.emit(Event{Type: env.Type, Payload: env.Payload})
	}
}

// connectionLost moves CONNECTED → RECONNECTING. Losing the transport is not
// a failed attempt; the retries that follow are.
func (m *Manager) connectionLost(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	delay := m.backoff.NextBackOff()
	events := m.setStateLocked(StateReconnecting)
	m.timer = time.AfterFunc(delay, func() { m.retry(gen) })
	m.mu.Unlock()

	_ = conn.Close()
	m.log.Warn("live channel lost", "err", err, "retry_in", delay)
	events = append(events, Event{Type: EventDisconnected, Err: err})
	m.emitAll(events)
}

func (m *Manager) setStateLocked(s State) []Event {
	if m.state == s {
		return nil
	}
	prev := m.state
	m.state = s
	return []Event{{Type: EventStateChange, State: s, Prev: prev}}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeConn(conn Conn) {
	m.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
	_ = conn.Close()
}

func (m *Manager) header() http.Header {
	h := http.Header{}
	if m.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+m.cfg.Token)
	}
	if m.cfg.UserID != "" {
		h.Set("X-User-ID", m.cfg.UserID)
	}
	return h
}

func (m *Manager) emitAll(events []Event) {
	for _, ev := range events {
		m.emit(ev)
	}
}

func (m *Manager) emit(ev Event) {
	m.handlerMu.RLock()
	subs := append([]subscription(nil), m.handlers[ev.Type]...)
	m.handlerMu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
