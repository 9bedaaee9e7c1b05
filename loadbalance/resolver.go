package loadbalance

import (
	"context"
	"fmt"
	"sync"

	"mini-jsonrpc/registry"
)

type keyCtx struct{}

// WithKey sets the key a key-based balancer hashes for calls made with ctx.  Without it
// the method name is used.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// Resolver picks the endpoint of each call among the instances of one service.  It asks
// the registry on every call unless Watch keeps a local copy of the instance list.
type Resolver struct {
	Registry registry.Registry
	Service  string
	Balancer Balancer

	mu        sync.RWMutex
	watching  bool
	instances []registry.ServiceInstance
}

// NewResolver returns a resolver for service.  A nil balancer means round robin.
func NewResolver(reg registry.Registry, service string, bal Balancer) *Resolver {
	if bal == nil {
		bal = &RoundRobinBalancer{}
	}
	return &Resolver{Registry: reg, Service: service, Balancer: bal}
}

// ResolveEndpoint implements client.EndpointResolver.
func (r *Resolver) ResolveEndpoint(ctx context.Context, method string) (string, error) {
	instances, err := r.current(ctx)
	if err != nil {
		return "", err
	}
	key, ok := ctx.Value(keyCtx{}).(string)
	if !ok {
		key = method
	}
	inst, err := r.Balancer.Pick(key, instances)
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.Service, err)
	}
	return inst.Endpoint, nil
}

func (r *Resolver) current(ctx context.Context) ([]registry.ServiceInstance, error) {
	r.mu.RLock()
	if r.watching {
		instances := r.instances
		r.mu.RUnlock()
		return instances, nil
	}
	r.mu.RUnlock()
	return r.Registry.Discover(ctx, r.Service)
}

// Watch seeds a local instance list from the registry and keeps it current from registry
// updates until ctx is done.
func (r *Resolver) Watch(ctx context.Context) error {
	instances, err := r.Registry.Discover(ctx, r.Service)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.instances, r.watching = instances, true
	r.mu.Unlock()

	updates := r.Registry.Watch(ctx, r.Service)
	go func() {
		for list := range updates {
			r.mu.Lock()
			r.instances = list
			r.mu.Unlock()
		}
		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
	}()
	return nil
}
