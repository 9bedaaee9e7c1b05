// Package registry keeps track of the endpoints that serve a JSON-RPC service.
//
// A server publishes the endpoint clients should call (an http:// or ws:// URL, or a
// host:port for framed streams) under a service name; clients discover the current list
// and pick one per call through the loadbalance package.
package registry

import "context"

// ServiceInstance is one endpoint serving a service.
type ServiceInstance struct {
	Endpoint string `json:"endpoint"`
	Weight   int    `json:"weight"` // relative share for weighted load balancing
	Version  string `json:"version,omitempty"`
}

type Registry interface {
	// Register publishes instance for ttl seconds, renewing it until the process exits or
	// the instance is deregistered.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, endpoint string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change, until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
