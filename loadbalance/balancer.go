// Package loadbalance picks the endpoint of each call among the instances of a service.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless services, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  the same key always reaches the same instance
//
// Resolver ties a strategy to a registry.Registry and plugs into client.Client and the
// binding package as their endpoint resolver.
package loadbalance

import (
	"errors"

	"mini-jsonrpc/registry"
)

// ErrNoInstances is returned when a service has no instances to pick from.
var ErrNoInstances = errors.New("no instances available")

// Balancer picks one instance per call.  key identifies the call; only key-based strategies
// look at it.  Implementations must be safe for concurrent use.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer called name: "round_robin", "weighted_random" or
// "consistent_hash".
func New(name string) (Balancer, bool) {
	switch name {
	case "round_robin", "":
		return &RoundRobinBalancer{}, true
	case "weighted_random":
		return &WeightedRandomBalancer{}, true
	case "consistent_hash":
		return NewConsistentHashBalancer(), true
	}
	return nil, false
}
