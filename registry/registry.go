// Package registry announces router endpoints and lets clients discover them.
//
// An entry is keyed by service name and address. Entries live under a TTL lease in
// etcd, so a crashed router disappears once its lease expires.
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("registry: instance not found")

// Instance describes one reachable router.
type Instance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
	Codec   string `json:"codec,omitempty"` // Preferred codec name, see codec.ParseType
}

type Registry interface {
	Register(ctx context.Context, service string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, service string, addr string) error
	Discover(ctx context.Context, service string) ([]Instance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, service string) <-chan []Instance
}
