package loadbalance

import (
	"math/rand"

	"jsonrpc-router/registry"
)

// WeightedRandom picks an instance with probability proportional to its weight.
// Non-positive weights count as 1.
type WeightedRandom struct{}

func weight(inst registry.Instance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}

func (WeightedRandom) Pick(_ string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}

	total := 0
	for _, inst := range instances {
		total += weight(inst)
	}

	r := rand.Intn(total)
	for _, inst := range instances {
		r -= weight(inst)
		if r < 0 {
			return inst, nil
		}
	}
	return instances[len(instances)-1], nil
}

func (WeightedRandom) Name() string {
	return "weighted_random"
}
