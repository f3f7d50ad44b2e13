package liveclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swipecook/internal/logger"
	"github.com/oggyb/swipecook/internal/wire"
)

type fakeConn struct {
	in     chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return 1, b, nil
	case <-c.done:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// push simulates a server message.
func (c *fakeConn) push(t *testing.T, typ string, payload any) {
	t.Helper()
	data, err := wire.Event{Type: typ, Payload: payload}.Marshal()
	require.NoError(t, err)
	c.in <- data
}

type scriptedDialer struct {
	mu    sync.Mutex
	calls int
	next  func(call int) (Conn, error)
}

func (d *scriptedDialer) Dial(context.Context, string, http.Header) (Conn, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	next := d.next
	d.mu.Unlock()
	return next(call)
}

func (d *scriptedDialer) set(next func(call int) (Conn, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next = next
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var errRefused = errors.New("connection refused")

type recorder struct {
	mu     sync.Mutex
	states []State
	counts map[string]int
}

func record(m *Manager) *recorder {
	r := &recorder{counts: map[string]int{}}
	m.On(EventStateChange, func(ev Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, ev.State)
	})
	for _, typ := range []string{EventConnected, EventDisconnected, EventError, EventMaxReconnectAttemptsReached} {
		typ := typ
		m.On(typ, func(Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.counts[typ]++
		})
	}
	return r
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[typ]
}

func (r *recorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newManager(d Dialer, cfg Config) *Manager {
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Millisecond
	}
	cfg.URL = "ws://test/ws"
	return New(cfg, WithDialer(d), WithLogger(logger.Discard()))
}

func waitState(t *testing.T, m *Manager, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == s }, 5*time.Second, time.Millisecond, "want %s, have %s", s, m.State())
}

func TestConnect_Success(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{next: func(int) (Conn, error) { return conn, nil }}
	m := newManager(d, Config{})
	defer m.Close()
	rec := record(m)

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)

	require.NoError(t, m.Connect(), "connect while connected is a no-op")
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 1, rec.count(EventConnected))
	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.seen())
}

func TestFailedAfterCeilingAndReset(t *testing.T) {
	d := &scriptedDialer{next: func(int) (Conn, error) { return nil, errRefused }}
	m := newManager(d, Config{MaxReconnectAttempts: 3})
	defer m.Close()
	rec := record(m)

	require.NoError(t, m.Connect())
	waitState(t, m, StateFailed)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, d.count())
	assert.Equal(t, 3, m.Attempts())
	assert.Equal(t, 1, rec.count(EventMaxReconnectAttemptsReached))
	assert.Equal(t, 3, rec.count(EventError))
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, []State{
		StateConnecting, StateReconnecting,
		StateConnecting, StateReconnecting,
		StateConnecting, StateFailed,
	}, rec.seen())

	assert.ErrorIs(t, m.Connect(), ErrAttemptsExhausted)

	m.ResetReconnectAttempts()
	assert.Equal(t, StateFailed, m.State(), "reset does not change state")
	assert.Zero(t, m.Attempts())

	conn := newFakeConn()
	d.set(func(int) (Conn, error) { return conn, nil })
	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)
	assert.Equal(t, 1, rec.count(EventMaxReconnectAttemptsReached))
}

func TestDisconnectDoesNotLiftCeiling(t *testing.T) {
	d := &scriptedDialer{next: func(int) (Conn, error) { return nil, errRefused }}
	m := newManager(d, Config{MaxReconnectAttempts: 3})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitState(t, m, StateFailed)

	conn := newFakeConn()
	d.set(func(int) (Conn, error) { return conn, nil })

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
	assert.ErrorIs(t, m.Connect(), ErrAttemptsExhausted)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 3, d.count(), "no dial without a reset")

	m.ResetReconnectAttempts()
	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)
}

func TestRetriesThenConnects(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{next: func(call int) (Conn, error) {
		if call < 3 {
			return nil, errRefused
		}
		return conn, nil
	}}
	m := newManager(d, Config{MaxReconnectAttempts: 5})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)
	assert.Equal(t, 3, d.count())
	assert.Zero(t, m.Attempts(), "success clears the counter")
}

func TestSend(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{next: func(int) (Conn, error) { return conn, nil }}
	m := newManager(d, Config{})
	defer m.Close()

	assert.False(t, m.Send(wire.EventHeartbeat, nil), "not connected")

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)

	assert.True(t, m.BroadcastActivity("swiping", map[string]int{"count": 3}))
	assert.True(t, m.CheckPartnerStatus())

	writes := conn.written()
	require.Len(t, writes, 2)
	assert.JSONEq(t, `{"type":"activity","payload":{"activity":"swiping","data":{"count":3}}}`, string(writes[0]))
	assert.JSONEq(t, `{"type":"checkPartnerStatus"}`, string(writes[1]))

	m.Disconnect()
	assert.False(t, m.Send(wire.EventHeartbeat, nil))
	assert.Equal(t, StateDisconnected, m.State())
}

func TestHandlersRunInOrderAndOff(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{next: func(int) (Conn, error) { return conn, nil }}
	m := newManager(d, Config{})
	defer m.Close()

	var (
		mu    sync.Mutex
		calls []int
	)
	handler := func(n int) Handler {
		return func(ev Event) {
			var p wire.NewMatchPayload
			if assert.NoError(t, ev.Decode(&p)) {
				assert.Equal(t, "m1", p.Match.ID)
			}
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, n)
		}
	}
	m.On(wire.EventNewMatch, handler(1))
	second := m.On(wire.EventNewMatch, handler(2))
	m.On(wire.EventNewMatch, handler(3))
	m.Off(wire.EventNewMatch, second)
	m.Off(wire.EventNewMatch, 9999)
	m.Off("never-subscribed", second)

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)
	conn.push(t, wire.EventNewMatch, wire.NewMatchPayload{Match: wire.Match{ID: "m1"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 2
	}, 5*time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 3}, calls)
	mu.Unlock()
}

func TestTransportLossReconnects(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	d := &scriptedDialer{next: func(call int) (Conn, error) {
		if call == 1 {
			return first, nil
		}
		return second, nil
	}}
	m := newManager(d, Config{})
	defer m.Close()
	rec := record(m)

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)

	_ = first.Close()
	require.Eventually(t, func() bool { return rec.count(EventConnected) == 2 }, 5*time.Second, time.Millisecond)

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, rec.count(EventDisconnected))
	assert.Equal(t, []State{
		StateConnecting, StateConnected,
		StateReconnecting, StateConnecting, StateConnected,
	}, rec.seen())
	assert.True(t, m.Heartbeat())
	assert.Len(t, second.written(), 1)
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	d := &scriptedDialer{next: func(int) (Conn, error) { return nil, errRefused }}
	m := newManager(d, Config{MaxReconnectAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitState(t, m, StateReconnecting)
	m.Disconnect()

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 1, m.Attempts(), "disconnect leaves the counter alone")
}

func TestCooldownRecoversFromFailed(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{next: func(call int) (Conn, error) {
		if call <= 2 {
			return nil, errRefused
		}
		return conn, nil
	}}
	m := newManager(d, Config{MaxReconnectAttempts: 2, CooldownAfterFailure: 20 * time.Millisecond})
	defer m.Close()
	rec := record(m)

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)
	assert.Equal(t, 1, rec.count(EventMaxReconnectAttemptsReached))
	assert.Contains(t, rec.seen(), StateFailed)
}

func TestCloseStopsEverything(t *testing.T) {
	conn := newFakeConn()
	d := &scriptedDialer{next: func(int) (Conn, error) { return conn, nil }}
	m := newManager(d, Config{})

	require.NoError(t, m.Connect())
	waitState(t, m, StateConnected)

	m.Close()
	assert.Equal(t, StateDisconnected, m.State())
	assert.ErrorIs(t, m.Connect(), ErrClosed)

	select {
	case <-conn.done:
	default:
		t.Fatal("connection left open")
	}
}
