// Package wsclient is a small relay client used by the join command.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Frame is any message received from the relay: a reply or a push.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

var (
	// ErrRejected is returned by Await when the relay answers with an error frame.
	ErrRejected = errors.New("call rejected")
	ErrClosed   = errors.New("connection closed")
)

type Client struct {
	conn     *websocket.Conn
	incoming chan Frame
	seq      atomic.Uint64

	writeMu   sync.Mutex
	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

// Dial connects to a relay websocket endpoint such as ws://localhost:8085/ws.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn:     conn,
		incoming: make(chan Frame, 64),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Incoming yields every frame from the relay and is closed when the
// connection ends.
func (c *Client) Incoming() <-chan Frame { return c.incoming }

// Call sends a request and returns its correlation id. The reply arrives on
// Incoming as "<event>-ack" or "error" carrying the same id.
func (c *Client) Call(event string, body any) (string, error) {
	id := strconv.FormatUint(c.seq.Add(1), 10)
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(Frame{ID: id, Event: event, Body: raw}); err != nil {
		return "", err
	}
	return id, nil
}

// Await returns the reply to the call with the given id. Frames that arrive
// first are handed to other, which may be nil.
func (c *Client) Await(ctx context.Context, id string, other func(Frame)) (Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case f, ok := <-c.incoming:
			if !ok {
				return Frame{}, ErrClosed
			}
			if f.ID != id {
				if other != nil {
					other(f)
				}
				continue
			}
			if f.Event == "error" {
				var body struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(f.Body, &body)
				return f, fmt.Errorf("%w: %s", ErrRejected, body.Error)
			}
			return f, nil
		}
	}
}

// Close ends the connection and returns once the read pump has stopped,
// whether or not Incoming is still being drained.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.readDone
	})
	return err
}

func (c *Client) readPump() {
	defer close(c.readDone)
	defer close(c.incoming)
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case c.incoming <- f:
		case <-c.done:
			return
		}
	}
}
