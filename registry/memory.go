package registry

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Registry for single-node runs and tests. TTLs are ignored.
type Memory struct {
	mu        sync.Mutex
	instances map[string]map[string]Instance
	watchers  map[string][]chan []Instance
}

func NewMemory() *Memory {
	return &Memory{
		instances: make(map[string]map[string]Instance),
		watchers:  make(map[string][]chan []Instance),
	}
}

func (m *Memory) Register(ctx context.Context, service string, instance Instance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instances[service] == nil {
		m.instances[service] = make(map[string]Instance)
	}
	m.instances[service][instance.Addr] = instance
	m.notifyLocked(service)
	return nil
}

func (m *Memory) Deregister(ctx context.Context, service string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[service][addr]; !ok {
		return ErrNotFound
	}
	delete(m.instances[service], addr)
	m.notifyLocked(service)
	return nil
}

func (m *Memory) Discover(ctx context.Context, service string) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(service), nil
}

func (m *Memory) Watch(ctx context.Context, service string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	m.mu.Lock()
	m.watchers[service] = append(m.watchers[service], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		watchers := m.watchers[service]
		for i, w := range watchers {
			if w == ch {
				m.watchers[service] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// listLocked returns the instances sorted by address so callers see a stable order.
func (m *Memory) listLocked(service string) []Instance {
	instances := make([]Instance, 0, len(m.instances[service]))
	for _, inst := range m.instances[service] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Addr < instances[j].Addr })
	return instances
}

// notifyLocked replaces any unread update with the latest list.
func (m *Memory) notifyLocked(service string) {
	list := m.listLocked(service)
	for _, ch := range m.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
