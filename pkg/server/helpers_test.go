package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

const testTimeout = 2 * time.Second

// testClient drives a session over an in-memory pipe the way a client would
type testClient struct {
	t    *testing.T
	conn *transport.PipeConn

	mu     sync.Mutex
	nextID int64
	notes  []*protocol.Notification

	done chan error
}

// startSession serves sess on one end of a pipe and returns a client on the
// other. The session is stopped when the test ends.
func startSession(t *testing.T, sess *Session) *testClient {
	t.Helper()
	serverEnd, clientEnd := transport.Pipe()
	c := &testClient{t: t, conn: clientEnd, done: make(chan error, 1)}
	go func() {
		c.done <- sess.Serve(context.Background(), serverEnd)
	}()
	t.Cleanup(func() {
		_ = clientEnd.Close()
		select {
		case <-c.done:
		case <-time.After(testTimeout):
			t.Error("session did not stop")
		}
	})
	return c
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *testClient) {
	t.Helper()
	sess := NewSession(Config{Capabilities: capability.All()}, opts...)
	return sess, startSession(t, sess)
}

func (c *testClient) request(method string, params interface{}) *protocol.Request {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	req, err := protocol.NewRequest(protocol.IntID(id), method, params)
	require.NoError(c.t, err)
	return req
}

// send writes a request without waiting for its response
func (c *testClient) send(method string, params interface{}) *protocol.Request {
	req := c.request(method, params)
	require.NoError(c.t, c.conn.Write(context.Background(), req))
	return req
}

// call sends a request and waits for its response. Notifications that arrive
// in between are kept for later inspection.
func (c *testClient) call(method string, params interface{}) *protocol.Response {
	req := c.send(method, params)
	return c.await(req.ID)
}

func (c *testClient) await(id protocol.RequestID) *protocol.Response {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	for {
		msg, err := c.conn.Read(ctx)
		require.NoError(c.t, err, "waiting for response %s", id.String())
		switch m := msg.(type) {
		case *protocol.Response:
			if m.ID == id {
				return m
			}
		case *protocol.Notification:
			c.mu.Lock()
			c.notes = append(c.notes, m)
			c.mu.Unlock()
		}
	}
}

func (c *testClient) notify(method string, params interface{}) {
	n, err := protocol.NewNotification(method, params)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(context.Background(), n))
}

// initialize performs the handshake with every client capability
func (c *testClient) initialize() *protocol.InitializeResult {
	c.t.Helper()
	resp := c.call(protocol.MethodInitialize, &protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision202411,
		ClientInfo:      protocol.Implementation{Name: "test-client", Version: "0.1.0"},
	})
	require.Nil(c.t, resp.Error)
	var result protocol.InitializeResult
	require.NoError(c.t, json.Unmarshal(resp.Result, &result))
	c.notify(protocol.MethodInitialized, nil)
	return &result
}

// sync round-trips a ping. Everything the session queued before handling it
// has been received once sync returns.
func (c *testClient) sync() {
	c.t.Helper()
	resp := c.call(protocol.MethodPing, nil)
	require.Nil(c.t, resp.Error)
}

// notifications returns and clears the notifications received so far with
// the given method
func (c *testClient) notifications(method string) []*protocol.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched, rest []*protocol.Notification
	for _, n := range c.notes {
		if n.Method == method {
			matched = append(matched, n)
		} else {
			rest = append(rest, n)
		}
	}
	c.notes = rest
	return matched
}

func decodeResult[T any](t *testing.T, resp *protocol.Response) T {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error response")
	var out T
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	return out
}

func requireErrorCode(t *testing.T, resp *protocol.Response, code int) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected an error response")
	require.Equal(t, protocol.ErrorCode(code), resp.Error.Code, resp.Error.Message)
}
