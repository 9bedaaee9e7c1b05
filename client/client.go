// Package client dispatches JSON-RPC calls over a transport.
//
// Every call, whether made by hand through Client or by a dispatcher generated by the
// binding package, goes through Exchange:
//
//	Request.Serialize ─→ send(ctx, endpoint, body) ─→ DecodeResponse ─→ Payload.Result ─→ decode result
//	   codec error           client error              codec error       protocol error     codec error
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/transport"
)

// SendFunc is the shape Exchange needs from a transport.
type SendFunc func(ctx context.Context, endpoint string, body []byte) ([]byte, error)

// EndpointResolver picks the endpoint of each call, for example from a service registry.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, method string) (string, error)
}

// ResolverFunc adapts a function to EndpointResolver.
type ResolverFunc func(ctx context.Context, method string) (string, error)

func (f ResolverFunc) ResolveEndpoint(ctx context.Context, method string) (string, error) {
	return f(ctx, method)
}

// Client is the explicit configuration of a JSON-RPC peer.  The zero Version means 2.0 and
// a nil Codec means codec.Default.  When Resolver is set it takes precedence over Endpoint.
//
// A Client is read-only during calls and safe for concurrent use when its transport is.
type Client struct {
	Transport transport.Transport
	Endpoint  string
	Version   message.Version
	Resolver  EndpointResolver
	Codec     codec.Codec
}

// New returns a version 2.0 client for endpoint.
func New(t transport.Transport, endpoint string) *Client {
	return &Client{Transport: t, Endpoint: endpoint, Version: message.V2}
}

// WithPath returns a copy of c whose endpoint has path appended.
func (c *Client) WithPath(path string) *Client {
	cp := *c
	cp.Endpoint = joinPath(c.Endpoint, path)
	return &cp
}

// Arg is a named argument of CallNamed.
type Arg struct {
	Name  string
	Value any
}

// Call invokes method with positional arguments and decodes the result into reply.  A nil
// reply discards the result.
func (c *Client) Call(ctx context.Context, method string, reply any, args ...any) error {
	version, err := c.version()
	if err != nil {
		return err
	}
	req := message.NewRequest(version, method)
	req.Params = message.ByPosition{}
	for _, arg := range args {
		req.WithArgument("", arg)
	}
	return c.Do(ctx, req, reply)
}

// CallNamed invokes method with arguments passed by name.  Version 1.0 has no named
// arguments, so a 1.0 client sends them by position in the given order.
func (c *Client) CallNamed(ctx context.Context, method string, reply any, args ...Arg) error {
	version, err := c.version()
	if err != nil {
		return err
	}
	req := message.NewRequest(version, method)
	for _, arg := range args {
		req.WithArgument(arg.Name, arg.Value)
	}
	return c.Do(ctx, req, reply)
}

// Do sends a prepared request and decodes the result into reply.
func (c *Client) Do(ctx context.Context, req *message.Request, reply any) error {
	if c.Transport == nil {
		return protocol.NewClientError(fmt.Errorf("no transport configured"))
	}
	endpoint, err := c.endpoint(ctx, req.Method)
	if err != nil {
		return err
	}
	raw, err := Exchange(ctx, c.Transport.Send, endpoint, req)
	if err != nil {
		return err
	}
	return DecodeResult(c.codec(), raw, reply)
}

// Call sends req through c and returns the result decoded as T.
func Call[T any](ctx context.Context, c *Client, req *message.Request) (T, error) {
	var out T
	err := c.Do(ctx, req, &out)
	return out, err
}

// version accepts the short forms "1" and "2"; anything else is a codec error.
func (c *Client) version() (message.Version, error) {
	if c.Version == "" {
		return message.V2, nil
	}
	v, err := message.ParseVersion(string(c.Version))
	if err != nil {
		return "", protocol.NewCodecError(err)
	}
	return v, nil
}

func (c *Client) codec() codec.Codec {
	if c.Codec == nil {
		return codec.Default
	}
	return c.Codec
}

func (c *Client) endpoint(ctx context.Context, method string) (string, error) {
	if c.Resolver == nil {
		return c.Endpoint, nil
	}
	endpoint, err := c.Resolver.ResolveEndpoint(ctx, method)
	if err != nil {
		return "", protocol.NewClientError(fmt.Errorf("resolving endpoint for %q: %w", method, err))
	}
	return endpoint, nil
}

// Exchange serializes req, sends it to endpoint and returns the raw result.  Errors are
// classified here and nowhere else.
func Exchange(ctx context.Context, send SendFunc, endpoint string, req *message.Request) (json.RawMessage, error) {
	body, err := req.Serialize()
	if err != nil {
		return nil, err
	}
	data, err := send(ctx, endpoint, body)
	if err != nil {
		return nil, protocol.NewClientError(err)
	}
	resp, err := message.DecodeResponse[json.RawMessage](data)
	if err != nil {
		return nil, err
	}
	return resp.Payload.Result()
}

// DecodeResult decodes a raw result into reply, which must be a non-nil pointer or nil.
// A null result only decodes into a type that can hold null: a pointer, interface, slice
// or map.
func DecodeResult(cdc codec.Codec, raw json.RawMessage, reply any) error {
	if reply == nil {
		return nil
	}
	rv := reflect.ValueOf(reply)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return protocol.NewCodecError(fmt.Errorf("reply must be a non-nil pointer, got %T", reply))
	}
	if isNullResult(raw) {
		if !Nullable(rv.Type().Elem()) {
			return protocol.NewCodecError(fmt.Errorf("null result cannot be decoded into %s", rv.Type().Elem()))
		}
		rv.Elem().SetZero()
		return nil
	}
	if err := cdc.Decode(raw, reply); err != nil {
		return protocol.NewCodecError(fmt.Errorf("decoding result: %w", err))
	}
	return nil
}

// Nullable reports whether JSON null is a value of t.
func Nullable(t reflect.Type) bool { return message.Nullable(t) }

func isNullResult(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func joinPath(endpoint, path string) string {
	if path == "" {
		return endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}
