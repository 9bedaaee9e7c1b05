package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"mini-jsonrpc/registry"
)

// ConsistentHashBalancer maps keys to instances on a hash ring, so the same key reaches the
// same instance until the instance list changes, and a change only moves the keys of the
// instances that came or went.
//
// Each instance is placed on the ring as many virtual nodes, which keeps a handful of
// instances from clustering on one side of the ring.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	built string   // fingerprint of the instance list the ring was built from
	ring  []uint32 // sorted virtual node hashes
	nodes map[uint32]registry.ServiceInstance
}

// NewConsistentHashBalancer uses 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

// Pick hashes key and walks clockwise to the first virtual node, wrapping around past the
// largest hash.  The ring is rebuilt whenever the instance list differs from the last one.
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if fp := fingerprint(instances); fp != b.built {
		b.rebuild(instances)
		b.built = fp
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance) {
	b.ring = make([]uint32, 0, len(instances)*b.replicas)
	b.nodes = make(map[uint32]registry.ServiceInstance, len(instances)*b.replicas)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Endpoint, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	slices.Sort(b.ring)
}

// fingerprint identifies an instance list independently of its order.
func fingerprint(instances []registry.ServiceInstance) string {
	endpoints := make([]string, len(instances))
	for i, inst := range instances {
		endpoints[i] = inst.Endpoint
	}
	slices.Sort(endpoints)
	return strings.Join(endpoints, "\n")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
