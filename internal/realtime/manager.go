package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/roach88/todosync/internal/clock"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultMaxAttempts    = 5
	DefaultDialTimeout    = 10 * time.Second
)

var (
	// ErrReconnectExhausted is reported through the error handler when the
	// manager stops reconnecting.
	ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")

	// ErrDisconnected is returned by Connect when Disconnect ran while the
	// dial was in flight.
	ErrDisconnected = errors.New("realtime: disconnected")
)

// Message is one inbound realtime event.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageHandler receives decoded messages.
type MessageHandler func(Message)

// ErrorHandler receives connection errors.
type ErrorHandler func(error)

type socket struct {
	gen       uint64
	state     State
	conn      Conn
	onMessage MessageHandler
	onError   ErrorHandler
}

// Manager owns the realtime connection and its reconnect schedule.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// Handlers run on the manager's read goroutine or on the clock's timer
// goroutine, never while the mutex is held.
type Manager struct {
	url         string
	dialer      Dialer
	clock       clock.Clock
	delay       time.Duration
	maxAttempts int
	dialTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	sock      *socket
	gen       uint64
	attempts  int
	timer     clock.Timer
	onMessage MessageHandler
	onError   ErrorHandler
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer sets the dialer. Default: WebSocketDialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock sets the clock driving reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithReconnectDelay sets the wait before each reconnect attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.delay = d
	}
}

// WithMaxAttempts bounds consecutive reconnect attempts.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		m.maxAttempts = n
	}
}

// WithDialTimeout bounds each handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.dialTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager for the ws or wss endpoint rawURL. A non-empty
// token is sent as the "token" query parameter.
func NewManager(rawURL, token string, opts ...Option) (*Manager, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("realtime url %q: scheme must be ws or wss", rawURL)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	m := &Manager{
		url:         u.String(),
		dialer:      WebSocketDialer{},
		clock:       clock.Real{},
		delay:       DefaultReconnectDelay,
		maxAttempts: DefaultMaxAttempts,
		dialTimeout: DefaultDialTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// URL returns the endpoint the manager dials, including any token.
func (m *Manager) URL() string {
	return m.url
}

// Status reports the state of the current socket handle. Every dial gets a
// fresh handle and the read loop drops it when the connection ends, so a dead
// connection reads as Disconnected without a manager-wide flag.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sock == nil {
		return Disconnected
	}
	return m.sock.state
}

// Attempts returns the number of reconnect attempts since the last open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens the channel. While a connection is open or being opened it
// returns nil without dialing again. Handlers passed here replace earlier
// ones and are reused by automatic reconnects.
//
// A failed dial is reported to onError and schedules a reconnect, the same
// as a dropped connection.
func (m *Manager) Connect(ctx context.Context, onMessage MessageHandler, onError ErrorHandler) error {
	m.mu.Lock()
	if m.sock != nil && (m.sock.state == Open || m.sock.state == Connecting) {
		m.mu.Unlock()
		return nil
	}
	m.onMessage = onMessage
	m.onError = onError
	m.stopTimerLocked()
	s := m.beginLocked()
	m.mu.Unlock()

	return m.dial(ctx, s)
}

// Disconnect closes the channel, cancels any pending reconnect and resets the
// attempt counter. It is safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	m.attempts = 0
	s := m.sock
	if s != nil {
		s.state = Closing
	}
	m.mu.Unlock()

	if s == nil {
		return
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			m.logger.Debug("realtime close", "error", err)
		}
	}

	m.mu.Lock()
	if m.sock == s {
		s.state = Disconnected
		m.sock = nil
	}
	m.mu.Unlock()
	m.logger.Info("realtime disconnected")
}

// Send JSON-encodes v and transmits it. It returns false when the channel is
// not open or the frame could not be written.
func (m *Manager) Send(v any) bool {
	m.mu.Lock()
	s := m.sock
	if s == nil || s.state != Open {
		m.mu.Unlock()
		return false
	}
	conn := s.conn
	m.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("realtime encode failed", "error", err)
		return false
	}
	if err := conn.Send(data); err != nil {
		m.logger.Warn("realtime send failed", "error", err)
		return false
	}
	return true
}

// beginLocked starts a new connection generation. Caller holds m.mu.
func (m *Manager) beginLocked() *socket {
	m.gen++
	s := &socket{
		gen:       m.gen,
		state:     Connecting,
		onMessage: m.onMessage,
		onError:   m.onError,
	}
	m.sock = s
	return s
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) dial(ctx context.Context, s *socket) error {
	dialCtx := ctx
	if m.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.dialTimeout)
		defer cancel()
	}

	conn, err := m.dialer.Dial(dialCtx, m.url)

	m.mu.Lock()
	if s.gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrDisconnected
	}
	if err != nil {
		s.state = Disconnected
		m.sock = nil
		exhausted := m.scheduleReconnectLocked(s.gen)
		m.mu.Unlock()

		err = fmt.Errorf("realtime dial: %w", err)
		m.logger.Warn("realtime connection failed", "url", m.url, "error", err)
		m.report(s, err)
		if exhausted {
			m.report(s, ErrReconnectExhausted)
		}
		return err
	}

	s.conn = conn
	s.state = Open
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Info("realtime connected", "url", m.url)
	go m.readLoop(s)
	return nil
}

// scheduleReconnectLocked arms one reconnect timer unless attempts are used
// up, and reports whether they are. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked(gen uint64) bool {
	if m.attempts >= m.maxAttempts {
		m.logger.Warn("realtime reconnect attempts exhausted", "attempts", m.attempts)
		return true
	}
	m.attempts++
	attempt := m.attempts
	m.logger.Info("realtime reconnect scheduled", "attempt", attempt, "delay", m.delay)
	m.timer = m.clock.AfterFunc(m.delay, func() {
		m.reconnect(gen)
	})
	return false
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.sock != nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	s := m.beginLocked()
	m.mu.Unlock()

	_ = m.dial(context.Background(), s)
}

func (m *Manager) readLoop(s *socket) {
	for {
		data, err := s.conn.Receive()
		if err != nil {
			m.handleClose(s, err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("realtime message parse failed", "error", err)
			continue
		}
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}

func (m *Manager) handleClose(s *socket, err error) {
	m.mu.Lock()
	if s.gen != m.gen || m.sock != s {
		m.mu.Unlock()
		return
	}
	s.state = Disconnected
	m.sock = nil
	exhausted := m.scheduleReconnectLocked(s.gen)
	m.mu.Unlock()

	_ = s.conn.Close()
	if isCleanClose(err) {
		m.logger.Info("realtime connection closed")
	} else {
		m.logger.Warn("realtime connection lost", "error", err)
		m.report(s, err)
	}
	if exhausted {
		m.report(s, ErrReconnectExhausted)
	}
}

func (m *Manager) report(s *socket, err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
