package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Prefix is the root of every key written by Etcd:
//
//	Key:   /jsonrpc-router/{service}/{addr}
//	Value: JSON-encoded Instance
const Prefix = "/jsonrpc-router/"

// Etcd implements Registry on etcd v3 with one lease per registered instance.
type Etcd struct {
	kv      clientv3.KV
	lease   clientv3.Lease
	watcher clientv3.Watcher
	closer  io.Closer
	logger  *zap.Logger

	leases sync.Map // key → clientv3.LeaseID

	ctx    context.Context // Lives until Close; keeps leases alive
	cancel context.CancelFunc
}

// NewEtcd connects to the given endpoints. The connection is lazy: an unreachable
// cluster surfaces as errors from the first operation.
func NewEtcd(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*Etcd, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	return newEtcdFrom(c, c, c, c, logger), nil
}

func newEtcdFrom(kv clientv3.KV, lease clientv3.Lease, watcher clientv3.Watcher, closer io.Closer, logger *zap.Logger) *Etcd {
	ctx, cancel := context.WithCancel(context.Background())
	return &Etcd{kv: kv, lease: lease, watcher: watcher, closer: closer, logger: logger, ctx: ctx, cancel: cancel}
}

func key(service, addr string) string {
	return Prefix + service + "/" + addr
}

// Register stores the instance under a lease of ttl seconds and keeps the lease alive
// until Deregister or Close. The lease is revoked again if registration fails halfway.
func (r *Etcd) Register(ctx context.Context, service string, instance Instance, ttl int64) error {
	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	lease, err := r.lease.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	k := key(service, instance.Addr)
	if _, err := r.kv.Put(ctx, k, string(val), clientv3.WithLease(lease.ID)); err != nil {
		r.revoke(context.WithoutCancel(ctx), lease.ID)
		return fmt.Errorf("registry: put %s: %w", k, err)
	}

	ch, err := r.lease.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		r.revoke(context.WithoutCancel(ctx), lease.ID)
		return fmt.Errorf("registry: keepalive: %w", err)
	}
	if old, loaded := r.leases.Swap(k, lease.ID); loaded {
		r.revoke(ctx, old.(clientv3.LeaseID))
	}

	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", k))
	}()
	return nil
}

// Deregister revokes the instance's lease, which deletes its key. Keys registered by
// another process are deleted directly.
func (r *Etcd) Deregister(ctx context.Context, service string, addr string) error {
	k := key(service, addr)
	if id, ok := r.leases.LoadAndDelete(k); ok {
		if r.revoke(ctx, id.(clientv3.LeaseID)) {
			return nil
		}
	}
	resp, err := r.kv.Delete(ctx, k)
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", k, err)
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Etcd) revoke(ctx context.Context, id clientv3.LeaseID) bool {
	if _, err := r.lease.Revoke(ctx, id); err != nil {
		r.logger.Warn("revoke lease", zap.Int64("lease", int64(id)), zap.Error(err))
		return false
	}
	return true
}

// Discover lists the instances currently stored under the service prefix.
func (r *Etcd) Discover(ctx context.Context, service string) ([]Instance, error) {
	resp, err := r.kv.Get(ctx, Prefix+service+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: discover %s: %w", service, err)
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skip malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the instance list on every change under the service prefix.
func (r *Etcd) Watch(ctx context.Context, service string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		watchChan := r.watcher.Watch(ctx, Prefix+service+"/", clientv3.WithPrefix())
		for wresp := range watchChan {
			if err := wresp.Err(); err != nil {
				r.logger.Warn("watch failed", zap.String("service", service), zap.Error(err))
				return
			}
			instances, err := r.Discover(ctx, service)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Warn("rediscover failed", zap.String("service", service), zap.Error(err))
				}
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close stops every keepalive and closes the etcd client. Leases then expire on their own.
func (r *Etcd) Close() error {
	r.cancel()
	return r.closer.Close()
}
