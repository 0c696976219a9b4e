package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonrpc-router/codec"
	"jsonrpc-router/message"
	"jsonrpc-router/middleware"
	"jsonrpc-router/protocol"
	"jsonrpc-router/registry"
	"jsonrpc-router/server"
)

var hello = server.ServiceFunc[struct{}](func(ctx context.Context, req *message.Request, _ struct{}) (*message.Response, error) {
	switch req.Method {
	case "hello":
		var name string
		if err := req.Deserialize(&name); err != nil {
			return nil, err
		}
		return message.NewResponse(req, fmt.Sprintf("Hello, %s!", name))
	case "slow":
		time.Sleep(100 * time.Millisecond)
		return message.NewResponse(req, "done")
	}
	return nil, nil
})

func newHandler() HandlerFunc {
	return server.New([]server.Service[struct{}]{hello}).Bind(struct{}{})
}

// startListener serves on a loopback port and returns the listener and a connection to it.
func startListener(t *testing.T, opts ...ListenerOption) (*Listener, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	l := NewListener(newHandler(), opts...)
	go l.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Shutdown(ctx)
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return l, conn
}

func send(t *testing.T, conn net.Conn, c codec.Type, seq uint32, body []byte) {
	t.Helper()
	require.NoError(t, protocol.Encode(conn, &protocol.Header{Codec: c, MsgType: protocol.MsgTypeRequest, Seq: seq}, body))
}

func sendRequest(t *testing.T, conn net.Conn, c codec.Type, seq uint32, req *message.Request) {
	t.Helper()
	cdc, err := codec.Get(c)
	require.NoError(t, err)
	body, err := cdc.Encode(req)
	require.NoError(t, err)
	send(t, conn, c, seq, body)
}

func receive(t *testing.T, conn net.Conn) (*protocol.Header, *message.Response) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	header, body, err := protocol.Decode(conn)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgTypeResponse, header.MsgType)

	cdc, err := codec.Get(header.Codec)
	require.NoError(t, err)
	var resp message.Response
	require.NoError(t, cdc.Decode(body, &resp))
	return header, &resp
}

func TestListenerCall(t *testing.T) {
	for _, c := range []codec.Type{codec.TypeJSON, codec.TypeCBOR} {
		t.Run(c.String(), func(t *testing.T) {
			_, conn := startListener(t)

			req, err := message.NewCall(message.NumberID(1), "hello", "world")
			require.NoError(t, err)
			sendRequest(t, conn, c, 123, req)

			header, resp := receive(t, conn)
			assert.Equal(t, uint32(123), header.Seq)
			assert.Equal(t, c, header.Codec)

			var got string
			require.NoError(t, resp.Into(&got))
			assert.Equal(t, "Hello, world!", got)
			assert.Equal(t, message.NumberID(1), *resp.ID)
		})
	}
}

func TestListenerNotification(t *testing.T) {
	_, conn := startListener(t)

	note, err := message.NewNotification("hello", "quiet")
	require.NoError(t, err)
	sendRequest(t, conn, codec.TypeJSON, 1, note)

	// Heartbeats are skipped silently.
	require.NoError(t, protocol.Encode(conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil))

	call, err := message.NewCall(message.NumberID(2), "hello", "loud")
	require.NoError(t, err)
	sendRequest(t, conn, codec.TypeJSON, 2, call)

	header, _ := receive(t, conn)
	assert.Equal(t, uint32(2), header.Seq, "a successful notification must not be answered")
}

func TestListenerNotificationErrorIsAnswered(t *testing.T) {
	_, conn := startListener(t)

	note, err := message.NewNotification("bye", nil)
	require.NoError(t, err)
	sendRequest(t, conn, codec.TypeJSON, 5, note)

	header, resp := receive(t, conn)
	assert.Equal(t, uint32(5), header.Seq)
	require.NotNil(t, resp.Error)
	assert.Equal(t, message.CodeMethodNotFound, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestListenerRejectsBadEnvelopes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"parse error", `{"jsonrpc":`, message.CodeParseError},
		{"batch", `[{"jsonrpc":"2.0","method":"hello","id":1}]`, message.CodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","method":"hello","id":1}`, message.CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, message.CodeInvalidRequest},
		{"fractional id", `{"jsonrpc":"2.0","method":"hello","id":1.5}`, message.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn := startListener(t)
			send(t, conn, codec.TypeJSON, 9, []byte(tt.body))

			_, resp := receive(t, conn)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestListenerConcurrentRequests(t *testing.T) {
	_, conn := startListener(t)

	const n = 20
	for i := 0; i < n; i++ {
		req, err := message.NewCall(message.NumberID(int64(i)), "hello", fmt.Sprint(i))
		require.NoError(t, err)
		sendRequest(t, conn, codec.TypeJSON, uint32(i), req)
	}

	seen := make(map[uint32]bool)
	for i := 0; i < n; i++ {
		header, resp := receive(t, conn)
		var got string
		require.NoError(t, resp.Into(&got))
		assert.Equal(t, fmt.Sprintf("Hello, %d!", header.Seq), got)
		seen[header.Seq] = true
	}
	assert.Len(t, seen, n)
}

func TestListenerRegistryLifecycle(t *testing.T) {
	reg := registry.NewMemory()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	l := NewListener(newHandler(), WithRegistry(reg, "greeter", registry.Instance{Weight: 3}, 10))
	served := make(chan error, 1)
	go func() { served <- l.Serve(ln) }()

	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(context.Background(), "greeter")
		return len(instances) == 1
	}, time.Second, 10*time.Millisecond)

	instances, err := reg.Discover(context.Background(), "greeter")
	require.NoError(t, err)
	assert.Equal(t, ln.Addr().String(), instances[0].Addr)
	assert.Equal(t, 3, instances[0].Weight)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	assert.NoError(t, <-served)

	instances, err = reg.Discover(context.Background(), "greeter")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestListenerShutdownWaitsForInFlight(t *testing.T) {
	l, conn := startListener(t)

	req, err := message.NewCall(message.NumberID(1), "slow", nil)
	require.NoError(t, err)
	sendRequest(t, conn, codec.TypeJSON, 1, req)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, l.Shutdown(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	_, resp := receive(t, conn)
	var got string
	require.NoError(t, resp.Into(&got))
	assert.Equal(t, "done", got)
}

func TestListenerShutdownWaitsForTimedOutDispatch(t *testing.T) {
	var finished atomic.Bool
	stubborn := server.ServiceFunc[struct{}](func(ctx context.Context, req *message.Request, _ struct{}) (*message.Response, error) {
		time.Sleep(150 * time.Millisecond)
		finished.Store(true)
		return message.NewResponse(req, "done")
	})
	srv := server.New([]server.Service[struct{}]{stubborn}, server.WithMiddleware(middleware.Timeout(20*time.Millisecond)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	l := NewListener(srv.Bind(struct{}{}))
	go l.Serve(ln)
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	req, err := message.NewCall(message.NumberID(1), "stubborn", nil)
	require.NoError(t, err)
	sendRequest(t, conn, codec.TypeJSON, 1, req)
	_, resp := receive(t, conn)
	require.NotNil(t, resp.Error)
	assert.Equal(t, message.CodeServerError, resp.Error.Code)
	assert.False(t, finished.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	assert.True(t, finished.Load())
}

func TestServeAfterShutdown(t *testing.T) {
	l := NewListener(newHandler())
	require.NoError(t, l.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, l.Serve(ln), ErrListenerClosed)
}
