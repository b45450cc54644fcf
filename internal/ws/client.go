package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"roomrelay/internal/services/relay"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// clientConn is one websocket peer. All writes go through send and are
// performed by writePump, so the socket only ever has one writer.
type clientConn struct {
	id      string
	rawConn *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func newClientConn(id string, rawConn *websocket.Conn, sendBuffer int) *clientConn {
	return &clientConn{
		id:      id,
		rawConn: rawConn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *clientConn) ID() string { return c.id }

// Push implements relay.Conn.
func (c *clientConn) Push(p relay.Push) error {
	return c.writeJSON(frame{Event: p.Event, Body: p.Body})
}

func (c *clientConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *clientConn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		zap.L().Warn("ws.slow_consumer", zap.String("conn_id", c.id))
		c.close()
		return errSendBufferFull
	}
}

func (c *clientConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.rawConn.Close()
	})
}

func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.rawConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
