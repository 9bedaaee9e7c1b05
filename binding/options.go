package binding

import (
	"mini-jsonrpc/client"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
)

// Option adjusts a binding.
type Option func(*options)

type options struct {
	version  message.Version
	endpoint *string
	resolver client.EndpointResolver
	codec    codec.Codec
}

// WithVersion overrides the protocol version declared by the description.
func WithVersion(v message.Version) Option {
	return func(o *options) { o.version = v }
}

// WithEndpoint fixes the endpoint of every call.  It takes precedence over an endpoint
// member of the target.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = &endpoint }
}

// WithEndpointResolver picks the endpoint per call.  It takes precedence over WithEndpoint
// and over an endpoint member of the target.
func WithEndpointResolver(r client.EndpointResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithCodec sets the codec results are decoded with.  The default is codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}
