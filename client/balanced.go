package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"jsonrpc-router/codec"
	"jsonrpc-router/loadbalance"
	"jsonrpc-router/registry"
)

// Balanced calls whichever router the balancer picks among the registered instances of
// one service. Connections are opened on first use and reused until they end.
type Balanced struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	service  string
	network  string
	opts     []Option
	logger   *zap.Logger
	dial     func(ctx context.Context, network, address string, opts ...Option) (*Conn, error)

	mu    sync.Mutex
	conns map[string]*Conn // addr → conn
}

func NewBalanced(reg registry.Registry, bal loadbalance.Balancer, service string, opts ...Option) *Balanced {
	return &Balanced{
		registry: reg,
		balancer: bal,
		service:  service,
		network:  "tcp",
		opts:     opts,
		logger:   buildOptions(opts).logger,
		dial:     Dial,
		conns:    make(map[string]*Conn),
	}
}

// Call discovers the service, picks an instance keyed by method and calls it.
func (b *Balanced) Call(ctx context.Context, method string, params any, result any) error {
	c, err := b.pick(ctx, method)
	if err != nil {
		return err
	}
	return c.Call(ctx, method, params, result)
}

// Notify sends a notification to the instance picked for method.
func (b *Balanced) Notify(ctx context.Context, method string, params any) error {
	c, err := b.pick(ctx, method)
	if err != nil {
		return err
	}
	return c.Notify(ctx, method, params)
}

func (b *Balanced) pick(ctx context.Context, method string) (*Conn, error) {
	instances, err := b.registry.Discover(ctx, b.service)
	if err != nil {
		return nil, err
	}
	instance, err := b.balancer.Pick(method, instances)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", b.service, err)
	}
	return b.conn(ctx, instance)
}

func (b *Balanced) conn(ctx context.Context, instance registry.Instance) (*Conn, error) {
	if c := b.cached(instance.Addr); c != nil {
		return c, nil
	}

	opts := b.opts
	if instance.Codec != "" {
		t, err := codec.ParseType(instance.Codec)
		if err != nil {
			return nil, err
		}
		opts = append(opts[:len(opts):len(opts)], WithCodec(t))
	}
	// Dial unlocked so a slow router does not hold up calls to the others.
	c, err := b.dial(ctx, b.network, instance.Addr, opts...)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing := b.liveLocked(instance.Addr); existing != nil {
		c.Close()
		return existing, nil
	}
	b.logger.Debug("connected", zap.String("service", b.service), zap.String("addr", instance.Addr))
	b.conns[instance.Addr] = c
	return c, nil
}

func (b *Balanced) cached(addr string) *Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.liveLocked(addr)
}

// liveLocked returns the open connection to addr, dropping it if it has ended.
func (b *Balanced) liveLocked(addr string) *Conn {
	c, ok := b.conns[addr]
	if !ok {
		return nil
	}
	select {
	case <-c.Done():
		delete(b.conns, addr)
		return nil
	default:
		return c
	}
}

// Prune follows registry changes until ctx is done and closes connections to routers
// that are no longer registered.
func (b *Balanced) Prune(ctx context.Context) {
	for instances := range b.registry.Watch(ctx, b.service) {
		live := make(map[string]bool, len(instances))
		for _, instance := range instances {
			live[instance.Addr] = true
		}

		b.mu.Lock()
		for addr, c := range b.conns {
			if !live[addr] {
				b.logger.Debug("router left", zap.String("service", b.service), zap.String("addr", addr))
				c.Close()
				delete(b.conns, addr)
			}
		}
		b.mu.Unlock()
	}
}

// Close closes every open connection.
func (b *Balanced) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for addr, c := range b.conns {
		c.Close()
		delete(b.conns, addr)
	}
	return nil
}
