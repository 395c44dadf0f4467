package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// Conn is the minimal transport surface the manager needs; *websocket.Conn
// satisfies it, tests substitute a scripted connection.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer func(ctx context.Context, url string) (Conn, error)

func WebsocketDialer() Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "websocket dial")
		}
		return c, nil
	}
}

type State struct {
	Connected bool
	LastError string
}

type Handler func(payload json.RawMessage)

type handlerEntry struct {
	id int
	fn Handler
}

type statusEntry struct {
	id int
	fn func(State)
}

// Manager owns the one long-lived channel of a session. Screens attach and
// detach handlers; they never own the connection lifecycle.
type Manager struct {
	url     string
	session models.Session
	dial    Dialer

	maxAttempts int
	backoffStep time.Duration
	backoffMax  time.Duration

	mu sync.Mutex
	// baseCtx lives as long as the session; reconnects triggered from the
	// read pump run on it, never on a request-scoped context.
	baseCtx      context.Context
	establishing bool
	writeMu      sync.Mutex
	conn         Conn
	connected    bool
	lastErr      string
	closed       bool
	gen          int
	nextID       int
	handlers     map[Event][]handlerEntry
	statusSub    []statusEntry
}

func New(url string, session models.Session, dial Dialer) *Manager {
	if dial == nil {
		dial = WebsocketDialer()
	}
	return &Manager{
		url:         url,
		session:     session,
		dial:        dial,
		maxAttempts: 5,
		backoffStep: time.Second,
		backoffMax:  5 * time.Second,
		handlers:    map[Event][]handlerEntry{},
	}
}

// WithRetryPolicy overrides the reconnect policy (mostly for tests).
func (m *Manager) WithRetryPolicy(maxAttempts int, step, max time.Duration) *Manager {
	if maxAttempts > 0 {
		m.maxAttempts = maxAttempts
	}
	if step > 0 {
		m.backoffStep = step
	}
	if max > 0 {
		m.backoffMax = max
	}
	return m
}

// Connect establishes the channel. Missing session data is a configuration
// error and is not retried; transport failures go through the backoff loop.
func (m *Manager) Connect(ctx context.Context) error {
	if m.url == "" || m.session.PhoneNumber == "" {
		m.mu.Lock()
		m.lastErr = "missing session data"
		m.mu.Unlock()
		return errs.Configuration("channel requires apiBaseUrl and phoneNumber")
	}
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
	return m.establish(ctx)
}

// Retry restarts the connect loop after the attempt budget was exhausted. The
// caller's context bounds only this loop; it does not replace the session
// context, so a later read-error reconnect keeps the full attempt budget.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.connected || m.closed {
		m.mu.Unlock()
		return nil
	}
	if m.baseCtx == nil {
		m.baseCtx = context.Background()
	}
	m.mu.Unlock()
	return m.establish(ctx)
}

func (m *Manager) establish(ctx context.Context) error {
	m.mu.Lock()
	if m.establishing {
		// Уже идёт цикл подключения (retry наперегонки с read pump);
		// второго соединения не открываем.
		m.mu.Unlock()
		return nil
	}
	m.establishing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.establishing = false
		m.mu.Unlock()
	}()

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		conn, err := m.dial(ctx, m.url)
		if err == nil {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				_ = conn.Close()
				return errs.Transport(nil, "channel is closed")
			}
			m.conn = conn
			m.connected = true
			m.lastErr = ""
			m.gen++
			gen := m.gen
			m.mu.Unlock()

			m.notify(State{Connected: true})
			m.dispatch(EventConnect, nil)
			go m.readPump(conn, gen)
			return nil
		}

		lastErr = err
		slog.Warn("channel dial failed", "attempt", attempt, "error", err.Error())
		if attempt == m.maxAttempts {
			break
		}
		delay := time.Duration(attempt) * m.backoffStep
		if delay > m.backoffMax {
			delay = m.backoffMax
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	msg := lastErr.Error()
	m.mu.Lock()
	m.connected = false
	m.lastErr = msg
	m.mu.Unlock()
	m.notify(State{Connected: false, LastError: msg})
	m.dispatch(EventConnectError, rawString(msg))
	return errs.Transport(lastErr, "channel connect attempts exhausted")
}

func (m *Manager) readPump(conn Conn, gen int) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			m.mu.Lock()
			if m.closed || gen != m.gen {
				m.mu.Unlock()
				return
			}
			m.connected = false
			m.lastErr = err.Error()
			base := m.baseCtx
			m.mu.Unlock()

			_ = conn.Close()
			m.notify(State{Connected: false, LastError: err.Error()})
			m.dispatch(EventDisconnect, nil)
			// Успешный establish сбрасывает счётчик попыток (цикл локальный).
			_ = m.establish(base)
			return
		}
		m.dispatch(f.Event, f.Payload)
	}
}

// On registers a handler and returns its unsubscribe func.
func (m *Manager) On(event Event, fn Handler) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers[event] = append(m.handlers[event], handlerEntry{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		hs := m.handlers[event]
		for i, h := range hs {
			if h.id == id {
				m.handlers[event] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// OnStatus registers a connection-status listener; the tracker uses it to
// decide when to rely on polling alone.
func (m *Manager) OnStatus(fn func(State)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.statusSub = append(m.statusSub, statusEntry{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.statusSub {
			if s.id == id {
				m.statusSub = append(m.statusSub[:i:i], m.statusSub[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) Emit(event Event, payload any) error {
	m.mu.Lock()
	conn, ok := m.conn, m.connected
	m.mu.Unlock()
	if !ok || conn == nil {
		return errs.Transport(nil, "channel is not connected")
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(frame{Event: event, Payload: b}); err != nil {
		return errs.Transport(err, "write frame")
	}
	return nil
}

func (m *Manager) JoinRoom(travelID string) error {
	return m.Emit(EventJoin, JoinPayload{PhoneNumber: m.session.PhoneNumber, TravelID: travelID})
}

func (m *Manager) LeaveRoom(travelID string) error {
	return m.Emit(EventLeave, travelID)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Connected: m.connected, LastError: m.lastErr}
}

// Disconnect tears the channel down for good (logout).
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.connected = false
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.notify(State{Connected: false})
}

// HandlerCount reports registered handlers for an event; the tracker-cleanup
// tests assert it drops back to zero.
func (m *Manager) HandlerCount(event Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[event])
}

func (m *Manager) dispatch(event Event, payload json.RawMessage) {
	m.mu.Lock()
	hs := append([]handlerEntry(nil), m.handlers[event]...)
	m.mu.Unlock()
	for _, h := range hs {
		h.fn(payload)
	}
}

func (m *Manager) notify(st State) {
	m.mu.Lock()
	subs := append([]statusEntry(nil), m.statusSub...)
	m.mu.Unlock()
	for _, s := range subs {
		s.fn(st)
	}
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
