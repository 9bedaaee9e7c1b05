package loadbalance

import (
	"math/rand/v2"

	"mini-jsonrpc/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to its weight.
// Instances without a positive weight count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for _, inst := range instances {
		totalWeight += weight(inst)
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(inst registry.ServiceInstance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}
