package registry

import (
	"context"
	"slices"
	"sync"
)

// MemoryRegistry is an in-process Registry.  It ignores TTLs; entries stay until they are
// deregistered.  It serves tests and single-process setups without etcd.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// Register adds instance, replacing an earlier entry for the same endpoint.
func (m *MemoryRegistry) Register(_ context.Context, serviceName string, inst ServiceInstance, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := slices.DeleteFunc(m.instances[serviceName], func(i ServiceInstance) bool {
		return i.Endpoint == inst.Endpoint
	})
	m.instances[serviceName] = append(insts, inst)
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, serviceName string, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[serviceName] = slices.DeleteFunc(m.instances[serviceName], func(i ServiceInstance) bool {
		return i.Endpoint == endpoint
	})
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.instances[serviceName]), nil
}

// Watch emits the current list at once and again after every change.  A slow watcher only
// sees the latest list.
func (m *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	m.mu.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	ch <- slices.Clone(m.instances[serviceName])
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.watchers[serviceName] = slices.DeleteFunc(m.watchers[serviceName], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		close(ch)
	}()
	return ch
}

// notify must be called with m.mu held.
func (m *MemoryRegistry) notify(serviceName string) {
	list := m.instances[serviceName]
	for _, ch := range m.watchers[serviceName] {
		// Replace a pending, now stale, list.
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(list)
	}
}
