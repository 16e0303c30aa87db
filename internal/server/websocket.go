// Package server carries the line protocol over WebSocket text frames so
// browser clients can join the same chat as raw TCP clients.
package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsLineConn maps one WebSocket text message to one protocol line on
// output. On input a message may carry several newline-separated lines.
type wsLineConn struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	pending      []string
	done         chan struct{}
	closeOnce    sync.Once
	closeErr     error
}

// NewWebSocketLineConn wraps an upgraded connection. When pingInterval is
// positive a keepalive goroutine pings the peer until Close.
func NewWebSocketLineConn(conn *websocket.Conn, addr string, maxLineLength int, writeTimeout, pingInterval time.Duration) LineConn {
	conn.SetReadLimit(int64(maxLineLength))

	c := &wsLineConn{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	if pingInterval > 0 {
		go c.keepalive(pingInterval)
	}
	return c
}

func (c *wsLineConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				return "", io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", errLineTooLong
			}
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.pending = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return strings.TrimSuffix(line, "\r"), nil
}

func (c *wsLineConn) WriteLine(line string) error {
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close sends a best-effort close frame and releases the connection.
func (c *wsLineConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
			!isExpectedCloseError(err) && !errors.Is(err, websocket.ErrCloseSent) {
			c.closeErr = err
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *wsLineConn) RemoteAddr() string {
	return c.addr
}

func (c *wsLineConn) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *wsLineConn) deadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeTimeout)
}
