package registry

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix is the root of the keys EtcdRegistry writes:
//
//	Key:   /jsonrpc/{ServiceName}/{escaped endpoint}
//	Value: JSON-encoded ServiceInstance
//
// Entries are attached to a TTL lease, so a crashed server disappears once its lease
// expires instead of lingering as a ghost instance.
const DefaultPrefix = "/jsonrpc/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // safe for concurrent use
	prefix string
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return NewEtcdRegistryFromClient(c, DefaultPrefix), nil
}

// NewEtcdRegistryFromClient uses an existing client and key prefix.
func NewEtcdRegistryFromClient(c *clientv3.Client, prefix string) *EtcdRegistry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &EtcdRegistry{client: c, prefix: prefix}
}

func (r *EtcdRegistry) serviceKey(serviceName string) string {
	return r.prefix + serviceName + "/"
}

func (r *EtcdRegistry) instanceKey(serviceName, endpoint string) string {
	return r.serviceKey(serviceName) + url.QueryEscape(endpoint)
}

// Register puts the instance under a new lease and keeps the lease alive in the
// background.  The lease id stays local to the call, so one registry may be shared by
// several servers.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, r.instanceKey(serviceName, instance.Endpoint), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// KeepAlive must outlive ctx, which often only covers the registration itself.
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, endpoint string) error {
	_, err := r.client.Delete(ctx, r.instanceKey(serviceName, endpoint))
	return err
}

// Watch re-reads the full list on every change under the service prefix rather than
// applying individual events.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close closes the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
