package loadbalance

import (
	"sync/atomic"

	"jsonrpc-router/registry"
)

// RoundRobin cycles through the instances with a lock-free counter.
type RoundRobin struct {
	counter atomic.Uint64
}

func (b *RoundRobin) Pick(_ string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}
	index := (b.counter.Add(1) - 1) % uint64(len(instances))
	return instances[index], nil
}

func (b *RoundRobin) Name() string {
	return "round_robin"
}
