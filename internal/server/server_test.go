package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/server"
	"github.com/Tyrowin/linechat/internal/testhelpers"
)

type testServer struct {
	srv     *server.Server
	addr    string
	wsURL   string
	httpURL string
	served  chan error
}

// startServer runs a chat server on an ephemeral TCP port plus an httptest
// gateway. Both are torn down when the test ends.
func startServer(t *testing.T, mutate func(*server.Config)) *testServer {
	t.Helper()

	cfg := server.NewConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv := server.NewServer(*cfg, logging.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts := &testServer{srv: srv, addr: ln.Addr().String(), served: make(chan error, 1)}
	go func() { ts.served <- srv.Serve(ln) }()

	gateway := httptest.NewServer(srv.SetupRoutes())
	ts.httpURL = gateway.URL
	ts.wsURL = "ws" + strings.TrimPrefix(gateway.URL, "http") + "/ws"

	t.Cleanup(func() {
		_ = srv.Shutdown(2 * time.Second)
		gateway.Close()
	})
	return ts
}

func TestServer_TwoClientScenario(t *testing.T) {
	ts := startServer(t, nil)

	alice := testhelpers.DialTCP(t, ts.addr)
	assert.Equal(t, "USER_LIST alice", alice.Login("alice"))

	bob := testhelpers.DialTCP(t, ts.addr)
	bob.Expect("SUBMIT_NAME")
	bob.Send("alice")
	// Login consumes the re-prompt.
	assert.Equal(t, "USER_LIST alice,bob", bob.Login("bob"))

	alice.Expect("USER_LIST alice,bob")
	alice.Expect("MESSAGE [Server]: bob has joined the chat.")

	alice.Send("BROADCAST hi")
	alice.Expect("MESSAGE alice: hi")
	bob.Expect("MESSAGE alice: hi")

	require.NoError(t, bob.Close())
	alice.Expect("USER_LIST alice")
	alice.Expect("MESSAGE [Server]: bob has left the chat.")

	require.Eventually(t, func() bool {
		return !ts.srv.Registry().Lookup("bob")
	}, time.Second, 10*time.Millisecond)
}

func TestServer_ConcurrentSameHandleOnlyOneWins(t *testing.T) {
	ts := startServer(t, nil)

	const contenders = 8
	clients := make([]*testhelpers.LineClient, contenders)
	for i := range clients {
		clients[i] = testhelpers.DialTCP(t, ts.addr)
		clients[i].Expect("SUBMIT_NAME")
	}
	for _, c := range clients {
		c.Send("alice")
	}

	accepted := 0
	for _, c := range clients {
		line, err := c.ReadLine(testhelpers.DefaultTimeout)
		require.NoError(t, err)
		switch line {
		case "NAME_ACCEPTED":
			accepted++
		case "SUBMIT_NAME":
		default:
			t.Fatalf("unexpected handshake reply %q", line)
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, []string{"alice"}, ts.srv.Registry().Snapshot())
}

func TestServer_DirectedMessages(t *testing.T) {
	ts := startServer(t, nil)

	alice := testhelpers.DialTCP(t, ts.addr)
	alice.Login("alice")
	carol := testhelpers.DialTCP(t, ts.addr)
	carol.Login("carol")
	alice.Expect("USER_LIST alice,carol")
	alice.Expect("MESSAGE [Server]: carol has joined the chat.")

	carol.Send("P2P alice,ghost:hello")
	carol.Expect("ERROR User 'ghost' not found.")
	carol.Expect("MESSAGE carol>>alice: hello")
	alice.Expect("MESSAGE carol>>alice: hello")

	carol.Send("DIRECT alice:again")
	carol.Expect("MESSAGE carol>>alice: again")
	alice.Expect("MESSAGE carol>>alice: again")

	carol.Send("P2P:hello")
	carol.Expect("ERROR Invalid P2P message format.")
	alice.ExpectSilence(100 * time.Millisecond)
}

func TestServer_UnknownCommandIsIgnored(t *testing.T) {
	ts := startServer(t, nil)

	alice := testhelpers.DialTCP(t, ts.addr)
	alice.Login("alice")

	alice.Send("SHOUT hello")
	alice.ExpectSilence(100 * time.Millisecond)

	alice.Send("BROADCAST still here")
	alice.Expect("MESSAGE alice: still here")
}

func TestServer_NullHandleForcesExit(t *testing.T) {
	ts := startServer(t, nil)

	c := testhelpers.DialTCP(t, ts.addr)
	c.Expect("SUBMIT_NAME")
	c.Send("null")
	c.Expect("FORCE_EXIT")
	c.ExpectClosed()

	assert.Zero(t, ts.srv.Registry().Len())
}

func TestServer_OverlongLineClosesSession(t *testing.T) {
	ts := startServer(t, func(cfg *server.Config) { cfg.MaxLineLength = 64 })

	watcher := testhelpers.DialTCP(t, ts.addr)
	watcher.Login("watcher")

	c := testhelpers.DialTCP(t, ts.addr)
	c.Login("loud")
	watcher.Expect("USER_LIST loud,watcher")
	watcher.Expect("MESSAGE [Server]: loud has joined the chat.")

	c.Send("BROADCAST " + strings.Repeat("x", 200))
	c.ExpectClosed()

	watcher.Expect("USER_LIST watcher")
	watcher.Expect("MESSAGE [Server]: loud has left the chat.")
}

func TestServer_ShutdownClosesSessions(t *testing.T) {
	ts := startServer(t, nil)

	alice := testhelpers.DialTCP(t, ts.addr)
	alice.Login("alice")
	pending := testhelpers.DialTCP(t, ts.addr)
	pending.Expect("SUBMIT_NAME")

	require.NoError(t, ts.srv.Shutdown(2*time.Second))

	alice.ExpectClosed()
	pending.ExpectClosed()
	assert.Zero(t, ts.srv.Registry().Len())
	assert.Zero(t, ts.srv.SessionCount())

	select {
	case err := <-ts.served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, ts.srv.Serve(ln), server.ErrServerClosed)
}

func TestServer_WebSocketAndTCPShareRegistry(t *testing.T) {
	ts := startServer(t, nil)

	alice := testhelpers.DialTCP(t, ts.addr)
	alice.Login("alice")

	bob := testhelpers.DialWebSocket(t, ts.wsURL)
	assert.Equal(t, "USER_LIST alice,bob", bob.Login("bob"))
	alice.Expect("USER_LIST alice,bob")
	alice.Expect("MESSAGE [Server]: bob has joined the chat.")

	bob.Send("P2P alice:from the browser")
	bob.Expect("MESSAGE bob>>alice: from the browser")
	alice.Expect("MESSAGE bob>>alice: from the browser")

	alice.Send("BROADCAST welcome")
	alice.Expect("MESSAGE alice: welcome")
	bob.Expect("MESSAGE alice: welcome")

	require.NoError(t, bob.Close())
	alice.Expect("USER_LIST alice")
	alice.Expect("MESSAGE [Server]: bob has left the chat.")
}

func TestServer_WebSocketOriginPolicy(t *testing.T) {
	ts := startServer(t, nil)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{name: "configured origin", origin: testhelpers.TestOrigin, allowed: true},
		{name: "case-insensitive host", origin: "HTTP://LOCALHOST:8080", allowed: true},
		{name: "foreign origin", origin: "http://evil.example", allowed: false},
		{name: "missing origin", origin: "", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := testhelpers.ConnectWebSocket(ts.wsURL, tt.origin)
			if !tt.allowed {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			_ = conn.Close()
		})
	}
}

func TestServer_WebSocketRejectsNonGet(t *testing.T) {
	ts := startServer(t, nil)

	resp, err := http.Post(ts.httpURL+"/ws", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_HTTPEndpoints(t *testing.T) {
	ts := startServer(t, nil)

	alice := testhelpers.DialTCP(t, ts.addr)
	alice.Login("alice")
	bob := testhelpers.DialTCP(t, ts.addr)
	bob.Login("bob")

	resp, err := http.Get(ts.httpURL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Chat server is running! Active users: 2", string(body))

	resp, err = http.Get(ts.httpURL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var users server.UserListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Equal(t, server.UserListResponse{Users: []string{"alice", "bob"}, Count: 2}, users)
}

func TestCreateServerTimeouts(t *testing.T) {
	srv := server.CreateServer(":0", http.NewServeMux())

	assert.Equal(t, ":0", srv.Addr)
	assert.Equal(t, 15*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
	assert.Zero(t, srv.WriteTimeout)
}

func TestServer_WebSocketOverlongMessageClosesSession(t *testing.T) {
	ts := startServer(t, func(cfg *server.Config) { cfg.MaxLineLength = 64 })

	c := testhelpers.DialWebSocket(t, ts.wsURL)
	c.Login("loud")

	c.Send("BROADCAST " + strings.Repeat("x", 200))
	c.ExpectClosed()

	require.Eventually(t, func() bool {
		return ts.srv.Registry().Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketGETWithoutUpgrade(t *testing.T) {
	ts := startServer(t, nil)

	resp, err := http.Get(ts.httpURL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, ts.srv.SessionCount())
}

func TestServer_ShutdownWithoutClients(t *testing.T) {
	ts := startServer(t, nil)
	assert.NoError(t, ts.srv.Shutdown(time.Second))
}

func TestServer_ConcurrentShutdown(t *testing.T) {
	ts := startServer(t, nil)
	c := testhelpers.DialTCP(t, ts.addr)
	c.Login("alice")

	errs := make(chan error, 3)
	for i := 0; i < cap(errs); i++ {
		go func() { errs <- ts.srv.Shutdown(2 * time.Second) }()
	}
	for i := 0; i < cap(errs); i++ {
		assert.NoError(t, <-errs)
	}
	c.ExpectClosed()
}

// stuckConn ignores Close so its session cannot finish until released.
type stuckConn struct {
	release chan struct{}
}

func (c *stuckConn) ReadLine() (string, error) {
	<-c.release
	return "", io.EOF
}

func (c *stuckConn) WriteLine(string) error { return nil }
func (c *stuckConn) Close() error { return nil }
func (c *stuckConn) RemoteAddr() string { return "stuck:1" }

func TestServer_ShutdownTimeout(t *testing.T) {
	srv := server.NewServer(*server.NewConfig(), logging.Discard())
	conn := &stuckConn{release: make(chan struct{})}

	served := make(chan error, 1)
	go func() { served <- srv.ServeConn(conn) }()
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, time.Second, 5*time.Millisecond)

	err := srv.Shutdown(50 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(conn.release)
	assert.NoError(t, <-served)
	assert.ErrorIs(t, srv.ServeConn(&stuckConn{}), server.ErrServerClosed)
}

// panicConn blows up on the first read.
type panicConn struct{ closed atomic.Bool }

func (c *panicConn) ReadLine() (string, error) { panic("boom") }
func (c *panicConn) WriteLine(string) error { return nil }
func (c *panicConn) RemoteAddr() string { return "panic:1" }

func (c *panicConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestServer_RecoversFromSessionPanic(t *testing.T) {
	srv := server.NewServer(*server.NewConfig(), logging.Discard())
	conn := &panicConn{}

	assert.NotPanics(t, func() { _ = srv.ServeConn(conn) })
	assert.True(t, conn.closed.Load())
	assert.Zero(t, srv.SessionCount())
}
