// Package testhelpers provides common utilities for testing the chat server.
//
// It wraps TCP and WebSocket connections in a LineClient that speaks the
// line protocol with per-read deadlines, so tests can assert on the exact
// sequence of frames a client receives without hanging on a silent server.
package testhelpers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every single read performed by a LineClient.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by DialWebSocket.
const TestOrigin = "http://localhost:8080"

// LineClient is a test-side protocol client.
type LineClient struct {
	t     *testing.T
	read  func(deadline time.Time) (string, error)
	write func(line string) error
	close func() error
}

// DialTCP connects to a raw TCP chat listener.
func DialTCP(t *testing.T, addr string) *LineClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	require.NoError(t, err, "dial %s", addr)

	reader := bufio.NewReader(conn)
	c := &LineClient{
		t: t,
		read: func(deadline time.Time) (string, error) {
			if err := conn.SetReadDeadline(deadline); err != nil {
				return "", err
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			return strings.TrimRight(line, "\r\n"), nil
		},
		write: func(line string) error {
			_, err := conn.Write([]byte(line + "\n"))
			return err
		},
		close: conn.Close,
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// DialWebSocket connects to the WebSocket gateway at url (ws://...).
func DialWebSocket(t *testing.T, url string) *LineClient {
	t.Helper()

	conn, err := ConnectWebSocket(url, TestOrigin)
	require.NoError(t, err, "dial %s", url)

	var pending []string
	c := &LineClient{
		t: t,
		read: func(deadline time.Time) (string, error) {
			for len(pending) == 0 {
				if err := conn.SetReadDeadline(deadline); err != nil {
					return "", err
				}
				_, data, err := conn.ReadMessage()
				if err != nil {
					return "", err
				}
				pending = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
			}
			line := pending[0]
			pending = pending[1:]
			return line, nil
		},
		write: func(line string) error {
			return conn.WriteMessage(websocket.TextMessage, []byte(line))
		},
		close: conn.Close,
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Send writes one line.
func (c *LineClient) Send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.write(line), "send %q", line)
}

// ReadLine reads the next line, failing after timeout.
func (c *LineClient) ReadLine(timeout time.Duration) (string, error) {
	return c.read(time.Now().Add(timeout))
}

// Expect requires the next line to equal want.
func (c *LineClient) Expect(want string) {
	c.t.Helper()
	got, err := c.ReadLine(DefaultTimeout)
	require.NoError(c.t, err, "waiting for %q", want)
	require.Equal(c.t, want, got)
}

// ExpectPrefix requires the next line to start with prefix and returns it.
func (c *LineClient) ExpectPrefix(prefix string) string {
	c.t.Helper()
	got, err := c.ReadLine(DefaultTimeout)
	require.NoError(c.t, err, "waiting for %q...", prefix)
	require.True(c.t, strings.HasPrefix(got, prefix), "expected prefix %q, got %q", prefix, got)
	return got
}

// ExpectSilence requires that nothing arrives within d.
func (c *LineClient) ExpectSilence(d time.Duration) {
	c.t.Helper()
	line, err := c.ReadLine(d)
	if err == nil {
		c.t.Fatalf("expected no line, got %q", line)
	}
	var netErr net.Error
	require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

// ExpectClosed requires the server to close the connection within the
// default timeout, skipping any lines still in flight.
func (c *LineClient) ExpectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for {
		_, err := c.read(deadline)
		if err == nil {
			continue
		}
		var netErr net.Error
		require.False(c.t, errors.As(err, &netErr) && netErr.Timeout(), "connection was not closed")
		return
	}
}

// Login completes the handshake for handle and consumes the frames the
// server sends on acceptance: NAME_ACCEPTED, USER_LIST and the join notice.
// It returns the USER_LIST line.
func (c *LineClient) Login(handle string) string {
	c.t.Helper()
	c.Expect("SUBMIT_NAME")
	c.Send(handle)
	c.Expect("NAME_ACCEPTED")
	list := c.ExpectPrefix("USER_LIST")
	c.Expect("MESSAGE [Server]: " + handle + " has joined the chat.")
	return list
}

// Close closes the underlying connection.
func (c *LineClient) Close() error {
	return c.close()
}
