package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/logging"
	"github.com/ayodineji/Agile-Board/internal/mutation"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

const (
	// writeWait is the time allowed to write one frame
	writeWait = 10 * time.Second

	// pongWait is the time allowed between pongs before the peer is dead
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames; a full dependency list fits easily
	maxMessageSize = 1 << 20
)

// client is one WebSocket connection. It implements broadcast.Conn.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newClient(id string, conn *websocket.Conn, buffer int, logger *zap.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String(logging.FieldConnID, id)),
	}
}

func (c *client) ID() string {
	return c.id
}

// Send queues a frame without blocking. It reports false when the queue is
// full or the connection is closing.
func (c *client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the write pump and closes the socket. Safe to call multiple times.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// goingAway tells the peer the server is shutting down, then closes.
func (c *client) goingAway() {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second),
	)
	c.close()
}

// readPump decodes inbound frames and submits them to the engine until the
// connection fails. Blocks.
func (c *client) readPump(ctx context.Context, engine *mutation.Engine, reject func(board.Event)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		var env board.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			reject(board.NewEvent(board.EventError, board.ErrorPayload{Message: "frames must be {\"event\": <name>, \"data\": <payload>}"}))
			continue
		}

		req := mutation.Request{ConnID: c.id, Kind: mutation.Kind(env.Event), Payload: env.Data}
		if err := engine.Submit(ctx, req); err != nil {
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
// Blocks until the client is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
