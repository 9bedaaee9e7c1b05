package client

import (
	"context"
	"fmt"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/transport"
)

// Blocking is the blocking counterpart of Client, for transports that only implement
// transport.BlockingTransport.
type Blocking struct {
	Transport transport.BlockingTransport
	Endpoint  string
	Version   message.Version
	Codec     codec.Codec
}

func NewBlocking(t transport.BlockingTransport, endpoint string) *Blocking {
	return &Blocking{Transport: t, Endpoint: endpoint, Version: message.V2}
}

func (b *Blocking) WithPath(path string) *Blocking {
	cp := *b
	cp.Endpoint = joinPath(b.Endpoint, path)
	return &cp
}

func (b *Blocking) Call(method string, reply any, args ...any) error {
	return b.client().Call(context.Background(), method, reply, args...)
}

func (b *Blocking) CallNamed(method string, reply any, args ...Arg) error {
	return b.client().CallNamed(context.Background(), method, reply, args...)
}

func (b *Blocking) Do(req *message.Request, reply any) error {
	if b.Transport == nil {
		return protocol.NewClientError(fmt.Errorf("no transport configured"))
	}
	raw, err := Exchange(context.Background(), Blocked(b.Transport), b.Endpoint, req)
	if err != nil {
		return err
	}
	return DecodeResult(b.client().codec(), raw, reply)
}

// client views b as a Client whose sends go straight to the blocking transport, on the
// calling goroutine.
func (b *Blocking) client() *Client {
	c := &Client{Endpoint: b.Endpoint, Version: b.Version, Codec: b.Codec}
	if b.Transport != nil {
		c.Transport = transport.Func(Blocked(b.Transport))
	}
	return c
}

// Blocked adapts a blocking transport to SendFunc.  The context is not consulted.
func Blocked(t transport.BlockingTransport) SendFunc {
	return func(_ context.Context, endpoint string, body []byte) ([]byte, error) {
		return t.SendBlocking(endpoint, body)
	}
}
