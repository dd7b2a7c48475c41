package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ErrConnClosed is returned when sending on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// Heartbeat frames exchanged with subscribers.
const (
	heartbeatPing = "ping"
	heartbeatPong = "pong"
)

// ConnConfig contains per-connection settings.
type ConnConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReadLimit    int64
	InboundRate  float64
	InboundBurst int
}

// DefaultConnConfig returns default per-connection settings.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		ReadLimit:    4096,
		InboundRate:  5,
		InboundBurst: 10,
	}
}

// WSConn is a subscriber connection over a websocket.
type WSConn struct {
	id      string
	ws      *websocket.Conn
	config  ConnConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSConn wraps an upgraded websocket.
func NewWSConn(ws *websocket.Conn, config ConnConfig, logger *slog.Logger) *WSConn {
	id := uuid.NewString()
	limit := rate.Inf
	if config.InboundRate > 0 {
		limit = rate.Limit(config.InboundRate)
	}
	return &WSConn{
		id:      id,
		ws:      ws,
		config:  config,
		limiter: rate.NewLimiter(limit, max(config.InboundBurst, 1)),
		logger:  logger.With("conn_id", id),
		done:    make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *WSConn) ID() string {
	return c.id
}

// Open reports whether the connection has not been closed.
func (c *WSConn) Open() bool {
	return !c.closed.Load()
}

// Send writes msg as a text frame. The context deadline bounds the write;
// without one, WriteWait applies.
func (c *WSConn) Send(ctx context.Context, msg []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.WriteWait)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close sends a close frame and releases the underlying connection.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteWait))
		err = c.ws.Close()
	})
	return err
}

// Serve runs the heartbeat and read loop until the peer disconnects, the
// read deadline passes or the connection is closed. It does not close
// the connection.
func (c *WSConn) Serve(ctx context.Context) error {
	go c.pingLoop()

	c.ws.SetReadLimit(c.config.ReadLimit)
	if err := c.extendReadDeadline(); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.extendReadDeadline()
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if err := c.extendReadDeadline(); err != nil {
			return err
		}

		if !c.limiter.Allow() {
			inboundDropped.Inc()
			c.logger.Debug("inbound frame dropped by rate limit")
			continue
		}

		if msgType == websocket.TextMessage && string(data) == heartbeatPing {
			if err := c.Send(ctx, []byte(heartbeatPong)); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		}
	}
}

func (c *WSConn) extendReadDeadline() error {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	return nil
}

func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}
