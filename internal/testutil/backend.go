// Package testutil provides a fake benchmark backend for tests.
package testutil

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/yzsind/dbbench/pkg/types"
)

// Backend serves the REST and push endpoints on an ephemeral port.
type Backend struct {
	URL string

	app *fiber.App

	mu        sync.Mutex
	metrics   any
	config    types.BenchmarkConfig
	logs      []types.LogEntry
	history   []types.TPSPoint
	responses map[string]types.OperationResponse
	hits      map[string]int
	bodies    map[string][]byte
	conns     map[*websocket.Conn]*peer

	rejectPush atomic.Bool
	accepted   atomic.Int64
}

// NewBackend starts a backend that is shut down with the test.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		metrics:   types.MetricSnapshot{Status: types.StatusIdle},
		config:    types.DefaultBenchmarkConfig(),
		logs:      []types.LogEntry{},
		history:   []types.TPSPoint{},
		responses: make(map[string]types.OperationResponse),
		hits:      make(map[string]int),
		bodies:    make(map[string][]byte),
		conns:     make(map[*websocket.Conn]*peer),
	}
	b.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	b.routes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b.URL = "http://" + ln.Addr().String()

	go func() {
		_ = b.app.Listener(ln)
	}()
	t.Cleanup(func() {
		b.DropClients()
		_ = b.app.Shutdown()
	})
	return b
}

func (b *Backend) record(c *fiber.Ctx) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := c.Method() + " " + c.Path()
	b.hits[key]++
	if body := c.Body(); len(body) > 0 {
		b.bodies[key] = append([]byte(nil), body...)
	}
}

func (b *Backend) routes() {
	b.app.Use(func(c *fiber.Ctx) error {
		b.record(c)
		return c.Next()
	})

	b.app.Get("/api/benchmark/config", func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		return c.JSON(b.config)
	})
	b.app.Get("/api/metrics/current", func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		return c.JSON(b.metrics)
	})
	b.app.Get("/api/benchmark/logs", func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		return c.JSON(tail(b.logs, c.QueryInt("limit", 100)))
	})
	b.app.Delete("/api/benchmark/logs", func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.logs = []types.LogEntry{}
		return c.JSON(fiber.Map{"success": true})
	})
	b.app.Get("/api/metrics/tps-history", func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		return c.JSON(tail(b.history, c.QueryInt("limit", 60)))
	})

	for _, op := range []string{"start", "stop", "load", "load/cancel", "clean", "test-connection", "config"} {
		op := op
		b.app.Post("/api/benchmark/"+op, func(c *fiber.Ctx) error {
			b.mu.Lock()
			resp, ok := b.responses[op]
			b.mu.Unlock()
			if !ok {
				resp = types.OperationResponse{Success: true, Message: op + " ok"}
			}
			if op == "config" && resp.Success && resp.Config == nil {
				var cfg types.BenchmarkConfig
				if err := types.Unmarshal(c.Body(), &cfg); err == nil {
					b.mu.Lock()
					b.config = cfg
					b.mu.Unlock()
					resp.Config = &cfg
				}
			}
			if !resp.Success {
				return c.Status(fiber.StatusBadRequest).JSON(resp)
			}
			return c.JSON(resp)
		})
	}

	b.app.Use("/ws", func(c *fiber.Ctx) error {
		if b.rejectPush.Load() {
			return fiber.ErrServiceUnavailable
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	b.app.Get("/ws/metrics", websocket.New(func(conn *websocket.Conn) {
		p := &peer{done: make(chan struct{})}
		b.mu.Lock()
		b.conns[conn] = p
		b.mu.Unlock()
		b.accepted.Add(1)

		defer func() {
			b.mu.Lock()
			delete(b.conns, conn)
			b.mu.Unlock()
		}()

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case <-readDone:
		case <-p.done:
			// 返回前等读协程退出，conn 交还给 fasthttp 后不能再用
			_ = conn.SetReadDeadline(time.Now())
			<-readDone
		}
	}))
}

// peer is one push connection. Writes are serialized by mu; closing done
// makes the handler return so fasthttp closes the socket.
type peer struct {
	mu   sync.Mutex
	done chan struct{}
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[len(items)-limit:]
}

// SetMetrics sets the /api/metrics/current body.
func (b *Backend) SetMetrics(v any) {
	b.mu.Lock()
	b.metrics = v
	b.mu.Unlock()
}

// SetConfig sets the stored benchmark configuration.
func (b *Backend) SetConfig(cfg types.BenchmarkConfig) {
	b.mu.Lock()
	b.config = cfg
	b.mu.Unlock()
}

// SetLogs replaces the backend log store.
func (b *Backend) SetLogs(logs []types.LogEntry) {
	b.mu.Lock()
	b.logs = logs
	b.mu.Unlock()
}

// SetHistory sets the throughput history.
func (b *Backend) SetHistory(points []types.TPSPoint) {
	b.mu.Lock()
	b.history = points
	b.mu.Unlock()
}

// SetResponse overrides the response of an operation such as "start" or
// "load/cancel".
func (b *Backend) SetResponse(op string, resp types.OperationResponse) {
	b.mu.Lock()
	b.responses[op] = resp
	b.mu.Unlock()
}

// Hits returns how often "METHOD /path" was requested.
func (b *Backend) Hits(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[key]
}

// Body returns the last request body received for "METHOD /path".
func (b *Backend) Body(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

// RejectPush makes websocket upgrades fail while set.
func (b *Backend) RejectPush(reject bool) {
	b.rejectPush.Store(reject)
}

// Clients returns the number of connected push clients.
func (b *Backend) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Accepted returns how many push clients have connected so far.
func (b *Backend) Accepted() int64 {
	return b.accepted.Load()
}

// Broadcast sends v as JSON to every push client.
func (b *Backend) Broadcast(v any) error {
	data, err := types.Marshal(v)
	if err != nil {
		return err
	}
	b.BroadcastRaw(data)
	return nil
}

// BroadcastRaw sends data verbatim to every push client.
func (b *Backend) BroadcastRaw(data []byte) {
	b.mu.Lock()
	conns := make(map[*websocket.Conn]*peer, len(b.conns))
	for c, p := range b.conns {
		conns[c] = p
	}
	b.mu.Unlock()

	for c, p := range conns {
		p.mu.Lock()
		select {
		case <-p.done:
		default:
			_ = c.WriteMessage(websocket.TextMessage, data)
		}
		p.mu.Unlock()
	}
}

// DropClients sends a close frame to every push client and ends its
// handler, which closes the socket. Dropped clients no longer count in
// Clients.
func (b *Backend) DropClients() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[*websocket.Conn]*peer)
	b.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "dropped")
	for c, p := range conns {
		p.mu.Lock()
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		close(p.done)
		p.mu.Unlock()
	}
}

// LogEntries builds n info entries numbered from 0.
func LogEntries(n int) []types.LogEntry {
	out := make([]types.LogEntry, n)
	for i := range out {
		out[i] = types.LogEntry{
			Timestamp: "2024-01-01 00:00:00.000",
			Level:     types.LevelInfo,
			Message:   "entry " + strconv.Itoa(i),
		}
	}
	return out
}

// Key joins a method and path the way Hits and Body expect.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
