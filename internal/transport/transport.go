// Package transport keeps the console fed with backend snapshots.
//
// A Manager owns the websocket push channel and the fallback poll timer.
// Everything it does happens on the goroutine running Run: inbound frames,
// poll ticks, poll results, dial results and reconnect timer fires are all
// posted to one event loop and handled to completion in arrival order.
// Network calls run on helper goroutines that only post their outcome back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/yzsind/dbbench/pkg/types"
)

// Config holds the transport timings.
type Config struct {
	// PushURL is the websocket endpoint (e.g., "ws://localhost:8080/ws/metrics").
	PushURL string

	// PollInterval is the period of the fallback poll timer.
	PollInterval time.Duration

	// ReconnectDelay is the wait before redialing a closed push channel.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration

	// FetchTimeout bounds one poll request.
	FetchTimeout time.Duration
}

// DefaultConfig returns the default transport timings.
func DefaultConfig() Config {
	return Config{
		PushURL:          "ws://localhost:8080/ws/metrics",
		PollInterval:     2 * time.Second,
		ReconnectDelay:   3 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		FetchTimeout:     10 * time.Second,
	}
}

// Fetcher fetches the current snapshot for the poll path.
type Fetcher interface {
	GetCurrentMetrics(ctx context.Context) (*types.MetricSnapshot, error)
}

// Handler receives everything the transport delivers. It is always called
// from the Run goroutine.
type Handler interface {
	// HandleMessage is called for every well-formed push message.
	HandleMessage(msg types.Message)
	// HandlePolled is called with each snapshot fetched by the poll path.
	HandlePolled(snap *types.MetricSnapshot)
}

// StateListener is called on every connection state change. err is set when
// the channel closed or failed to open.
type StateListener func(state types.ConnectionState, err error)

type event interface{}

type dialResult struct {
	conn *websocket.Conn
	err  error
}

type frame struct {
	conn *websocket.Conn
	data []byte
}

type connClosed struct {
	conn *websocket.Conn
	err  error
}

type pollResult struct {
	snap *types.MetricSnapshot
	err  error
}

type reconnectFire struct{}

// Manager owns the push channel and the poll fallback.
type Manager struct {
	cfg     Config
	fetcher Fetcher
	handler Handler
	clock   clockwork.Clock
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu        sync.Mutex
	state     types.ConnectionState
	listeners []StateListener

	// owned by the Run goroutine
	conn           *websocket.Conn
	pollTicker     clockwork.Ticker
	reconnectTimer clockwork.Timer
	polling        bool

	events    chan event
	done      chan struct{}
	closeOnce sync.Once
	postMu    sync.RWMutex
	stopped   bool
	running   atomic.Bool

	polls      atomic.Int64
	dials      atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager. Zero timings fall back to DefaultConfig.
func NewManager(cfg Config, fetcher Fetcher, handler Handler, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	m := &Manager{
		cfg:     cfg,
		fetcher: fetcher,
		handler: handler,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
		state:   types.ConnClosed,
		events:  make(chan event, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dialer = &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	return m
}

// OnStateChange registers a connection state listener.
func (m *Manager) OnStateChange(l StateListener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// State returns the push channel state.
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Polls returns the number of poll fetches performed.
func (m *Manager) Polls() int64 { return m.polls.Load() }

// Dials returns the number of push channel dial attempts.
func (m *Manager) Dials() int64 { return m.dials.Load() }

// Reconnects returns the number of reconnect timer fires.
func (m *Manager) Reconnects() int64 { return m.reconnects.Load() }

// Dropped returns the number of push messages dropped as malformed.
func (m *Manager) Dropped() int64 { return m.dropped.Load() }

// Run connects the push channel, starts the poll timer and processes events
// until ctx is cancelled or Close is called.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("transport already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer m.shutdown()

	m.pollTicker = m.clock.NewTicker(m.cfg.PollInterval)
	m.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-m.pollTicker.Chan():
			m.onPollTick(ctx)
		case ev := <-m.events:
			m.dispatch(ctx, ev)
		}
	}
}

// Close stops Run and releases the connection and timers.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) dispatch(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case dialResult:
		m.onDialResult(ctx, e)
	case frame:
		m.onFrame(e)
	case connClosed:
		m.onConnClosed(ctx, e)
	case pollResult:
		m.onPollResult(e)
	case reconnectFire:
		m.reconnectTimer = nil
		m.reconnects.Add(1)
		m.connect(ctx)
	}
}

// post hands ev to the event loop. It reports false once the loop has
// stopped; the caller then owns any resource carried by ev.
func (m *Manager) post(ctx context.Context, ev event) bool {
	m.postMu.RLock()
	defer m.postMu.RUnlock()
	if m.stopped {
		return false
	}
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	}
}

func (m *Manager) setState(state types.ConnectionState, err error) {
	m.mu.Lock()
	m.state = state
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(state, err)
	}
}

func (m *Manager) connect(ctx context.Context) {
	m.setState(types.ConnConnecting, nil)
	m.dials.Add(1)

	go func() {
		conn, _, err := m.dialer.DialContext(ctx, m.cfg.PushURL, nil)
		if err != nil {
			err = fmt.Errorf("websocket dial failed: %w", err)
		}
		if !m.post(ctx, dialResult{conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) onDialResult(ctx context.Context, r dialResult) {
	if r.err != nil {
		m.logger.Warn("push channel unavailable", zap.String("url", m.cfg.PushURL), zap.Error(r.err))
		m.setState(types.ConnClosed, r.err)
		m.scheduleReconnect(ctx)
		return
	}

	m.conn = r.conn
	m.logger.Info("push channel connected", zap.String("url", m.cfg.PushURL))
	m.setState(types.ConnOpen, nil)
	go m.readPump(ctx, r.conn)
}

func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.post(ctx, connClosed{conn: conn, err: err})
			return
		}
		m.post(ctx, frame{conn: conn, data: data})
	}
}

func (m *Manager) onFrame(f frame) {
	if f.conn != m.conn {
		return
	}
	msg, err := types.DecodeMessage(f.data)
	if err != nil {
		m.dropped.Add(1)
		m.logger.Warn("dropping malformed push message", zap.Error(err), zap.Int("bytes", len(f.data)))
		return
	}
	m.handler.HandleMessage(msg)
}

func (m *Manager) onConnClosed(ctx context.Context, c connClosed) {
	if c.conn != m.conn {
		return
	}
	_ = m.conn.Close()
	m.conn = nil
	m.logger.Warn("push channel closed, reconnecting", zap.Duration("delay", m.cfg.ReconnectDelay), zap.Error(c.err))
	m.setState(types.ConnClosed, c.err)
	m.scheduleReconnect(ctx)
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	if m.reconnectTimer != nil {
		return
	}
	m.reconnectTimer = m.clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.post(ctx, reconnectFire{})
	})
}

func (m *Manager) onPollTick(ctx context.Context) {
	if m.State() == types.ConnOpen {
		return
	}
	if m.polling {
		m.logger.Debug("previous poll still in flight, skipping tick")
		return
	}
	m.polling = true
	m.polls.Add(1)

	go func() {
		fctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()
		snap, err := m.fetcher.GetCurrentMetrics(fctx)
		m.post(ctx, pollResult{snap: snap, err: err})
	}()
}

func (m *Manager) onPollResult(r pollResult) {
	m.polling = false
	if r.err != nil {
		m.logger.Warn("status poll failed", zap.Error(r.err))
		return
	}
	if m.State() == types.ConnOpen {
		m.logger.Debug("push channel reopened, discarding polled snapshot")
		return
	}
	m.handler.HandlePolled(r.snap)
}

func (m *Manager) shutdown() {
	m.Close()
	m.postMu.Lock()
	m.stopped = true
	m.postMu.Unlock()
	// events queued before the loop stopped may still hold a dialed connection
drain:
	for {
		select {
		case ev := <-m.events:
			if r, ok := ev.(dialResult); ok && r.conn != nil {
				_ = r.conn.Close()
			}
		default:
			break drain
		}
	}

	if m.pollTicker != nil {
		m.pollTicker.Stop()
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.conn != nil {
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = m.conn.Close()
		m.conn = nil
	}
	m.setState(types.ConnClosed, nil)
}
