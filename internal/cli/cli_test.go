package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jsonrpc-router/config"
	"jsonrpc-router/internal/greeter"
	"jsonrpc-router/message"
	"jsonrpc-router/transport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.LogLevel = "error"
	return cfg
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func startGreeter(t *testing.T, cfg *config.Config) string {
	t.Helper()
	srv, err := buildServer(cfg, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	l := transport.NewListener(srv.Bind(greeter.Data{Node: "test"}))
	go l.Serve(ln)
	t.Cleanup(func() { l.Shutdown(context.Background()) })
	return ln.Addr().String()
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(cfg, "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCallCommand(t *testing.T) {
	cfg := testConfig(t)
	addr := startGreeter(t, cfg)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"hello", []string{"hello", `"world"`}, `"Hello, world!"`},
		{"math", []string{"math.Add", `{"a":2,"b":40}`}, "42"},
		{"echo without params", []string{"echo"}, "null"},
		{"node", []string{"node"}, `"test"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"call", "--addr", addr}, tt.args...)
			out, err := run(t, testConfig(t), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestCallCommandCBOR(t *testing.T) {
	cfg := testConfig(t)
	addr := startGreeter(t, cfg)

	out, err := run(t, testConfig(t), "call", "--codec", "cbor", "--addr", addr, "math.Sub", `{"a":2,"b":5}`)
	require.NoError(t, err)
	assert.Equal(t, "-3", strings.TrimSpace(out))
}

func TestCallCommandErrors(t *testing.T) {
	cfg := testConfig(t)
	addr := startGreeter(t, cfg)

	_, err := run(t, testConfig(t), "call", "--addr", addr, "bye")
	var obj *message.ErrorObject
	require.ErrorAs(t, err, &obj)
	assert.Equal(t, message.CodeMethodNotFound, obj.Code)

	_, err = run(t, testConfig(t), "call", "--addr", addr, "hello", `{not json`)
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = run(t, testConfig(t), "call", "hello")
	assert.ErrorContains(t, err, "--addr")

	_, err = run(t, testConfig(t), "call", "--codec", "xml", "--addr", addr, "hello")
	assert.Error(t, err)
}

func TestCallCommandNotify(t *testing.T) {
	cfg := testConfig(t)
	addr := startGreeter(t, cfg)

	out, err := run(t, testConfig(t), "call", "--notify", "--addr", addr, "hello", `"quiet"`)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestServeCommand(t *testing.T) {
	cfg := testConfig(t)
	addr, httpAddr := freeAddr(t), freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	root := NewRootCommand(cfg, "test")
	root.SetArgs([]string{"serve", "--addr", addr, "--http-addr", httpAddr, "--timeout", "1s"})
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	out, err := run(t, testConfig(t), "call", "--addr", addr, "hello", `"stream"`)
	require.NoError(t, err)
	assert.Equal(t, `"Hello, stream!"`, strings.TrimSpace(out))

	require.Eventually(t, func() bool {
		resp, err := http.Post("http://"+httpAddr, "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","method":"hello","params":"http","id":1}`))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "serve", "--addr", "", "--http-addr", "")
	assert.ErrorContains(t, err, "listen address")

	cfg = testConfig(t)
	_, err = run(t, cfg, "serve", "--addr", freeAddr(t), "--codec", "xml")
	assert.Error(t, err)
}
