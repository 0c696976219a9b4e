package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"jsonrpc-router/registry"
)

// ConsistentHash maps keys to instances on a hash ring with virtual nodes. The ring is
// rebuilt only when the instance set changes.
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
type ConsistentHash struct {
	mu       sync.Mutex
	replicas int                          // Virtual nodes per instance
	ring     []uint32                     // Sorted hash values
	nodes    map[uint32]registry.Instance // Hash value → instance
	members  string                       // Addresses the ring was built from
}

func NewConsistentHash(replicas int) *ConsistentHash {
	if replicas <= 0 {
		replicas = 1
	}
	return &ConsistentHash{
		replicas: replicas,
		nodes:    make(map[uint32]registry.Instance),
	}
}

// Add places an instance on the ring.
func (b *ConsistentHash) Add(instance registry.Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(instance)
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHash) addLocked(instance registry.Instance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
}

// Get returns the instance owning key on the current ring.
func (b *ConsistentHash) Get(key string) (registry.Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getLocked(key)
}

func (b *ConsistentHash) getLocked(key string) (registry.Instance, error) {
	if len(b.ring) == 0 {
		return registry.Instance{}, ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHash) Pick(key string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}

	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	members := strings.Join(addrs, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	if members != b.members {
		b.ring = b.ring[:0]
		clear(b.nodes)
		for _, inst := range instances {
			b.addLocked(inst)
		}
		sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
		b.members = members
	}
	return b.getLocked(key)
}

func (b *ConsistentHash) Name() string {
	return "consistent_hash"
}
