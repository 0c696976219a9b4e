// Package loadbalance picks one router instance per call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity routers
//   - WeightedRandom:  routers of different capacity, by Instance.Weight
//   - ConsistentHash:  the same method always lands on the same router
package loadbalance

import (
	"errors"
	"fmt"

	"jsonrpc-router/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance. key is the method being called; strategies that do
// not need affinity ignore it. Pick is called concurrently.
type Balancer interface {
	Pick(key string, instances []registry.Instance) (registry.Instance, error)
	Name() string
}

// ByName returns a fresh balancer for a configuration name.
func ByName(name string) (Balancer, error) {
	switch name {
	case "round_robin", "":
		return &RoundRobin{}, nil
	case "weighted_random":
		return WeightedRandom{}, nil
	case "consistent_hash":
		return NewConsistentHash(100), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
