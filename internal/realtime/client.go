package realtime

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vimeet/server/internal/metrics"
	"github.com/vimeet/server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // rooms are public, any origin may join
	},
}

// Coordinator is the part of the Hub a connection talks to.
type Coordinator interface {
	Join(ctx context.Context, room, name string, send chan<- []byte) (Member, error)
	Dispatch(sender Member, cmd protocol.Command)
	Disconnect(id uint64)
}

// Options tunes per-connection behaviour.
type Options struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	OutboxSize        int
	JoinTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 5 * time.Second
	}
	if o.ClientTimeout <= 0 {
		o.ClientTimeout = 10 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 64
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 5 * time.Second
	}
	return o
}

// Client represents a single WebSocket connection joined to a room.
type Client struct {
	member   Member
	hub      Coordinator
	conn     *websocket.Conn
	send     chan []byte
	logger   *zap.Logger
	m        *metrics.Metrics
	opts     Options
	lastSeen atomic.Int64 // unix nanos of the last ping or pong
	stopOnce sync.Once
	done     chan struct{}
}

// ServeWs upgrades /ws/:room/:name/ and runs the session until it ends.
func ServeWs(hub Coordinator, logger *zap.Logger, m *metrics.Metrics, opts Options) gin.HandlerFunc {
	opts = opts.withDefaults()
	if m == nil {
		m = metrics.New(nil)
	}
	return func(c *gin.Context) {
		roomName := c.Param("room")
		name := c.Param("name")
		if roomName == "" || name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room and name required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			member: Member{Room: roomName, Name: name},
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, opts.OutboxSize),
			logger: logger,
			m:      m,
			opts:   opts,
			done:   make(chan struct{}),
		}
		client.run(c.Request.Context())
	}
}

func (c *Client) run(ctx context.Context) {
	joinCtx, cancel := context.WithTimeout(ctx, c.opts.JoinTimeout)
	member, err := c.hub.Join(joinCtx, c.member.Room, c.member.Name, c.send)
	cancel()
	if err != nil {
		// the hub skips or reaps a join whose caller gave up
		c.logger.Warn("join failed, closing connection",
			zap.String("room", c.member.Room),
			zap.String("name", c.member.Name),
			zap.Error(err),
		)
		_ = c.conn.Close()
		return
	}
	c.member = member
	c.logger = c.logger.With(zap.Uint64("session_id", member.ID), zap.String("room", member.Room))
	c.touch()

	go c.writePump()
	c.readPump()
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Client) idle() time.Duration {
	return time.Since(time.Unix(0, c.lastSeen.Load()))
}

// terminate ends the session. Disconnect reaches the hub exactly once.
func (c *Client) terminate() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.hub.Disconnect(c.member.ID)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.terminate()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPingHandler(func(appData string) error {
		c.touch()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		switch typ {
		case websocket.TextMessage:
			c.handleText(data)
		case websocket.BinaryMessage:
			c.logger.Warn("unexpected binary frame", zap.Int("bytes", len(data)))
		}
	}
}

func (c *Client) handleText(data []byte) {
	cmd, err := protocol.Decode(bytes.TrimSpace(data))
	switch {
	case err == nil:
		c.hub.Dispatch(c.member, cmd)
	case errors.Is(err, protocol.ErrDeprecated):
		c.m.DecodeFailures.WithLabelValues("deprecated").Inc()
		c.logger.Warn("deprecated frame format ignored", zap.ByteString("frame", data))
	case errors.Is(err, protocol.ErrMalformed):
		c.m.DecodeFailures.WithLabelValues("malformed").Inc()
		c.logger.Debug("malformed frame ignored", zap.ByteString("frame", data))
	default:
		c.m.DecodeFailures.WithLabelValues("unrecognized").Inc()
	}
}

// writePump writes hub events and runs the heartbeat.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.terminate()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if c.idle() > c.opts.ClientTimeout {
				c.m.HeartbeatTimeouts.Inc()
				c.logger.Info("websocket client heartbeat failed, disconnecting")
				return
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
