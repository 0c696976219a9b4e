// Package client calls a router over the framed stream protocol.
//
// Conn multiplexes concurrent calls over one connection. Every frame carries a
// sequence number, and a single reader goroutine routes each response frame to the
// caller waiting on that number:
//
//	goroutine-1 ──Call(seq=1)──┐
//	goroutine-2 ──Call(seq=2)──┼──→ one conn ──→ router
//	goroutine-3 ──Call(seq=3)──┘
//
//	recvLoop: ←── response(seq=2) → pending[2] → goroutine-2 wakes up
//
// Balanced resolves a service through a registry and keeps one Conn per router.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"jsonrpc-router/codec"
	"jsonrpc-router/message"
	"jsonrpc-router/protocol"
)

var ErrClosed = errors.New("client: connection closed")

const defaultHeartbeat = 30 * time.Second

type outcome struct {
	resp *message.Response
	err  error
}

// Conn is a multiplexed connection to one router.
type Conn struct {
	conn   net.Conn
	codec  codec.Codec
	logger *zap.Logger

	seq     atomic.Uint32
	pending sync.Map   // seq → chan outcome
	sending sync.Mutex // Serializes whole frames on conn

	closeOnce sync.Once
	done      chan struct{}
	err       error // Why the connection ended; set before done is closed
}

type Option func(*options)

type options struct {
	codec     codec.Type
	heartbeat time.Duration
	logger    *zap.Logger
}

func WithCodec(t codec.Type) Option {
	return func(o *options) { o.codec = t }
}

// WithHeartbeat sets the idle heartbeat interval. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{codec: codec.TypeJSON, heartbeat: defaultHeartbeat, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dial connects to a router and starts the reader and heartbeat goroutines.
func Dial(ctx context.Context, network, address string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", address, err)
	}
	c, err := NewConn(nc, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn, opts ...Option) (*Conn, error) {
	o := buildOptions(opts)
	cdc, err := codec.Get(o.codec)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		conn:   nc,
		codec:  cdc,
		logger: o.logger,
		done:   make(chan struct{}),
	}
	go c.recvLoop()
	if o.heartbeat > 0 {
		go c.heartbeatLoop(o.heartbeat)
	}
	return c, nil
}

// Call sends a request and decodes its result into result, which may be nil. A failed
// call returns the router's *message.ErrorObject.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	seq := c.seq.Add(1)
	req, err := message.NewCall(message.NumberID(int64(seq)), method, params)
	if err != nil {
		return err
	}

	ch := make(chan outcome, 1)
	c.pending.Store(seq, ch)
	if err := c.send(seq, req); err != nil {
		c.pending.Delete(seq)
		return err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		return r.resp.Into(result)
	case <-ctx.Done():
		c.pending.Delete(seq)
		return ctx.Err()
	}
}

// Notify sends a notification. The router only answers notifications that fail; such
// answers are logged and dropped.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := message.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.send(c.seq.Add(1), req)
}

func (c *Conn) send(seq uint32, req *message.Request) error {
	body, err := c.codec.Encode(req)
	if err != nil {
		return fmt.Errorf("client: encode request: %w", err)
	}
	header := protocol.Header{Codec: c.codec.Type(), MsgType: protocol.MsgTypeRequest, Seq: seq}

	select {
	case <-c.done:
		return c.err
	default:
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	if err := protocol.Encode(c.conn, &header, body); err != nil {
		c.fail(err)
		return c.err
	}
	return nil
}

// recvLoop is the only reader of conn. It ends when a frame cannot be read, failing
// every pending call.
func (c *Conn) recvLoop() {
	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		var resp message.Response
		cdc, err := codec.Get(header.Codec)
		if err == nil {
			err = cdc.Decode(body, &resp)
		}

		v, ok := c.pending.LoadAndDelete(header.Seq)
		if !ok {
			if resp.Error != nil {
				c.logger.Warn("unsolicited error response", zap.Uint32("seq", header.Seq), zap.Error(resp.Error))
			}
			continue
		}
		ch := v.(chan outcome)
		if err != nil {
			ch <- outcome{err: fmt.Errorf("client: decode response: %w", err)}
			continue
		}
		ch <- outcome{resp: &resp}
	}
}

func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		c.sending.Lock()
		err := protocol.Encode(c.conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil)
		c.sending.Unlock()
		if err != nil {
			c.fail(err)
			return
		}
	}
}

// fail ends the connection once and wakes every pending caller with the cause.
func (c *Conn) fail(cause error) {
	c.closeOnce.Do(func() {
		if errors.Is(cause, ErrClosed) {
			c.err = ErrClosed
		} else {
			c.err = fmt.Errorf("%w: %v", ErrClosed, cause)
		}
		close(c.done)
		c.conn.Close()
	})
	c.pending.Range(func(key, _ any) bool {
		if v, ok := c.pending.LoadAndDelete(key); ok {
			v.(chan outcome) <- outcome{err: c.err}
		}
		return true
	})
}

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Close() error {
	c.fail(ErrClosed)
	return nil
}
