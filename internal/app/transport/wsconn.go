package transport

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum allowed size (in bytes) of a message received from the broker.
	maxMessageSize = 64 << 10
)

// wsConn adapts a WebSocket connection to the byte stream a STOMP client reads and writes.
// Outgoing bytes are buffered until a frame terminator so that every frame travels in a
// single text message; lone EOLs (heart-beats) are sent as they come.
type wsConn struct {
	ws *websocket.Conn

	// rmu guards reader; only the STOMP read loop calls Read.
	rmu    sync.Mutex
	reader io.Reader

	// wmu guards pending and serializes writes on ws.
	wmu     sync.Mutex
	pending []byte

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(maxMessageSize)
	return &wsConn{ws: ws}
}

// Read implements io.Reader across WebSocket message boundaries.
func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write implements io.Writer, emitting one text message per complete frame.
func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.pending = append(c.pending, p...)

	for {
		i := bytes.IndexByte(c.pending, 0)
		if i < 0 {
			break
		}
		if err := c.writeMessage(c.pending[:i+1]); err != nil {
			return 0, err
		}
		c.pending = append(c.pending[:0], c.pending[i+1:]...)
	}

	if len(c.pending) > 0 && len(bytes.Trim(c.pending, "\r\n")) == 0 {
		if err := c.writeMessage(c.pending); err != nil {
			return 0, err
		}
		c.pending = c.pending[:0]
	}

	return len(p), nil
}

func (c *wsConn) writeMessage(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal close message and closes the connection. Safe to call repeatedly.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)

		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
