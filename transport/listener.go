package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"jsonrpc-router/codec"
	"jsonrpc-router/message"
	"jsonrpc-router/middleware"
	"jsonrpc-router/protocol"
	"jsonrpc-router/registry"
)

var ErrListenerClosed = errors.New("transport: listener closed")

// Listener serves framed requests from stream connections.
type Listener struct {
	handler HandlerFunc
	logger  *zap.Logger

	registry registry.Registry // nil when not announcing
	service  string
	instance registry.Instance
	ttl      int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	shutdown bool
	wg       sync.WaitGroup // In-flight requests

	ctx    context.Context // Parent of every dispatch; cancelled when Shutdown gives up
	cancel context.CancelFunc
}

type ListenerOption func(*Listener)

func WithLogger(logger *zap.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRegistry announces the listener under service once it accepts connections and
// withdraws it on Shutdown. An empty instance.Addr is replaced by the listen address.
func WithRegistry(reg registry.Registry, service string, instance registry.Instance, ttl int64) ListenerOption {
	return func(l *Listener) {
		l.registry = reg
		l.service = service
		l.instance = instance
		l.ttl = ttl
	}
}

func NewListener(handler HandlerFunc, opts ...ListenerOption) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		handler: handler,
		logger:  zap.NewNop(),
		conns:   make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListenAndServe listens on the given address and calls Serve.
func (l *Listener) ListenAndServe(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return l.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after a Shutdown and
// the accept error otherwise.
func (l *Listener) Serve(ln net.Listener) error {
	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		ln.Close()
		return ErrListenerClosed
	}
	l.listener = ln
	if l.instance.Addr == "" {
		l.instance.Addr = ln.Addr().String()
	}
	instance := l.instance
	l.mu.Unlock()

	if l.registry != nil {
		if err := l.registry.Register(l.ctx, l.service, instance, l.ttl); err != nil {
			ln.Close()
			return fmt.Errorf("transport: announce %s: %w", l.service, err)
		}
		l.logger.Info("announced", zap.String("service", l.service), zap.String("addr", instance.Addr))
	}

	l.logger.Info("listening", zap.Stringer("addr", ln.Addr()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.closing() {
				return nil
			}
			return err
		}
		if !l.track(conn) {
			conn.Close()
			return nil
		}
		go l.handleConn(conn)
	}
}

// Addr returns the listen address, or nil before Serve.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

func (l *Listener) closing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdown
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

// begin registers an in-flight request unless the listener is shutting down. Holding mu
// keeps wg.Add from racing with the Wait in Shutdown.
func (l *Listener) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown {
		return false
	}
	l.wg.Add(1)
	return true
}

// handleConn reads frames sequentially and dispatches each request in its own goroutine.
// All of them share one write lock so response frames never interleave.
func (l *Listener) handleConn(conn net.Conn) {
	defer l.untrack(conn)
	defer conn.Close()
	writeMu := &sync.Mutex{}

	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.logger.Debug("connection dropped", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			}
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeRequest:
		default:
			l.logger.Debug("unexpected frame", zap.Stringer("type", header.MsgType))
			continue
		}

		if !l.begin() {
			return
		}
		go l.handleRequest(header, body, conn, writeMu)
	}
}

func (l *Listener) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer l.wg.Done()

	c, err := codec.Get(header.Codec)
	if err != nil {
		l.logger.Warn("codec", zap.Error(err))
		return
	}

	req, resp := decodeRequest(c, body)
	if req != nil {
		resp = l.handler(middleware.WithTracker(l.ctx, &l.wg), req)
	}
	if resp == nil {
		return
	}

	out, err := c.Encode(resp)
	if err != nil {
		l.logger.Error("encode response", zap.Error(err))
		out, err = c.Encode(message.Internal(resp.ID, err).Response())
		if err != nil {
			return
		}
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	reply := protocol.Header{Codec: header.Codec, MsgType: protocol.MsgTypeResponse, Seq: header.Seq}
	if err := protocol.Encode(conn, &reply, out); err != nil {
		l.logger.Debug("write response", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

// Shutdown withdraws the registry entry, stops accepting, waits for in-flight requests
// and closes every connection. Dispatches abandoned by middleware.Timeout count as in
// flight until they return. If ctx ends first, running dispatches are cancelled and
// ctx's error is returned.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.shutdown = true
	ln := l.listener
	addr := l.instance.Addr
	l.mu.Unlock()

	if l.registry != nil && ln != nil {
		if err := l.registry.Deregister(ctx, l.service, addr); err != nil {
			l.logger.Warn("withdraw", zap.String("service", l.service), zap.Error(err))
		}
	}
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("transport: waiting for in-flight requests: %w", ctx.Err())
	}
	l.cancel()

	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()
	return err
}
