// Package server implements a JSON-RPC peer: method registration, a middleware chain,
// parallel request processing and graceful shutdown.  It answers over HTTP, WebSocket and
// the framed stream protocol, and is what the client transports are tested against.
//
// Request processing pipeline:
//
//	HTTP POST / WebSocket message / stream frame
//	  → Middleware Chain → dispatch (ParseRequest → Handler → encode response)
//	    → response document written back on the same connection
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/registry"
)

// Server dispatches JSON-RPC requests to registered handlers.
type Server struct {
	mu          sync.RWMutex
	handlers    map[string]Handler  // method name → handler
	services    map[string]*service // registered receivers by service name
	middlewares []middleware.Middleware
	chain       atomic.Pointer[middleware.HandlerFunc] // built on first use
	codec       codec.Codec
	log         zerolog.Logger

	listener      net.Listener
	wg            sync.WaitGroup // in-flight requests, for graceful shutdown
	shutdown      atomic.Bool    // set before the listener is closed
	registry      registry.Registry
	advertiseAddr string // endpoint published in the registry
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.  The default is the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithCodec sets the codec params are decoded with, for HTTP and WebSocket requests.
// Stream requests pick their codec from the frame header.
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// NewServer creates a server with no methods.
func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		services: make(map[string]*service),
		codec:    codec.Default,
		log:      zlog.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register publishes the suitable methods of rcvr (see registerMethods) under their names
// with the first letter lower-cased: Subtract becomes "subtract".
func (svr *Server) Register(rcvr any) error {
	return svr.register("", "", rcvr)
}

// RegisterName is like Register, but names the service and prefixes every method with
// "name.".
func (svr *Server) RegisterName(name string, rcvr any) error {
	return svr.register(name, name+".", rcvr)
}

func (svr *Server) register(name, prefix string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	for methodName, m := range svc.method {
		svr.handlers[prefix+methodName] = svc.handler(m)
	}
	svr.services[svc.name] = svc
	return nil
}

// Handle publishes h as method.
func (svr *Server) Handle(method string, h Handler) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.handlers[method] = h
}

// Use registers a middleware.  Middlewares run in the order they are added and must be
// registered before the first request is served.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

func (svr *Server) handler() middleware.HandlerFunc {
	if h := svr.chain.Load(); h != nil {
		return *h
	}
	// Chain(A, B, C)(dispatch) → A(B(C(dispatch)))
	h := middleware.Chain(svr.middlewares...)(svr.dispatch)
	svr.chain.CompareAndSwap(nil, &h)
	return *svr.chain.Load()
}

// ServeDocument answers one request document.  endpoint is what middlewares see as the
// call's endpoint: the URL path for HTTP and WebSocket, the remote address for streams.
func (svr *Server) ServeDocument(ctx context.Context, endpoint string, body []byte) []byte {
	svr.wg.Add(1)
	defer svr.wg.Done()

	resp, err := svr.handler()(ctx, endpoint, body)
	if err != nil {
		// A middleware rejected the request before it was dispatched.
		id, version := peekRequest(body)
		svr.log.Warn().Err(err).Str(`endpoint`, endpoint).Msg(`request rejected`)
		return svr.encode(id, version, nil, &protocol.RemoteError{Code: CodeServerError, Message: err.Error()})
	}
	return resp
}

// dispatch is the innermost handler of the middleware chain.
func (svr *Server) dispatch(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := message.ParseRequest(body)
	if err != nil {
		id, version := peekRequest(body)
		code := protocol.CodeInvalidRequest
		if !json.Valid(body) {
			code = protocol.CodeParseError
		}
		return svr.encode(id, version, nil, &protocol.RemoteError{Code: code, Message: err.Error()}), nil
	}

	svr.mu.RLock()
	h := svr.handlers[req.Method]
	svr.mu.RUnlock()
	if h == nil {
		return svr.encode(req.ID, req.Version, nil, &protocol.RemoteError{
			Code:    protocol.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", req.Method),
		}), nil
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		svr.log.Debug().Err(err).Str(`method`, req.Method).Msg(`handler failed`)
		return svr.encode(req.ID, req.Version, nil, remoteError(err)), nil
	}
	return svr.encode(req.ID, req.Version, result, nil), nil
}

// encode renders a response, falling back to an internal error when the result cannot be
// encoded.
func (svr *Server) encode(id message.ID, version message.Version, result any, remote *protocol.RemoteError) []byte {
	var resp *message.Response[any]
	switch {
	case remote != nil && version == message.V1:
		resp = message.NewV1Error[any](id, remote)
	case remote != nil:
		resp = message.NewV2Error[any](id, remote)
	case version == message.V1:
		resp = message.NewV1Result[any](id, result)
	default:
		resp = message.NewV2Result[any](id, result)
	}
	data, err := json.Marshal(resp)
	if err == nil {
		return data
	}
	svr.log.Error().Err(err).Msg(`failed to encode response`)
	data, _ = json.Marshal(message.NewV2Error[any](id, &protocol.RemoteError{
		Code:    protocol.CodeInternalError,
		Message: "failed to encode result",
	}))
	return data
}

// peekRequest recovers what it can of a request that failed to parse, so the error
// response still carries its id.
func peekRequest(body []byte) (message.ID, message.Version) {
	var w struct {
		ID      message.ID      `json:"id"`
		Version message.Version `json:"jsonrpc"`
	}
	if err := json.Unmarshal(body, &w); err != nil || !w.Version.Valid() {
		return w.ID, message.V2
	}
	return w.ID, w.Version
}

// Serve listens on the given address, optionally registers advertiseAddr with the
// registry, and serves framed streams until Shutdown.
//
// advertiseAddr is the endpoint clients should use, e.g. "127.0.0.1:8080" rather than the
// listen address ":8080".  Pass a nil registry to skip service discovery.
func (svr *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	if reg != nil {
		if err := svr.Publish(context.Background(), reg, advertiseAddr); err != nil {
			_ = listener.Close()
			return err
		}
	}
	return svr.ServeListener(listener)
}

// Publish registers advertiseAddr under every registered service name, so that Shutdown
// can withdraw them again.  The entries live on a 10 second lease renewed in the background.
func (svr *Server) Publish(ctx context.Context, reg registry.Registry, advertiseAddr string) error {
	svr.mu.RLock()
	names := make([]string, 0, len(svr.services))
	for name := range svr.services {
		names = append(names, name)
	}
	svr.mu.RUnlock()

	svr.registry = reg
	svr.advertiseAddr = advertiseAddr
	for _, name := range names {
		err := reg.Register(ctx, name, registry.ServiceInstance{Endpoint: advertiseAddr, Weight: 1}, 10)
		if err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return nil
}

// ServeListener accepts framed stream connections on l until Shutdown.
func (svr *Server) ServeListener(l net.Listener) error {
	svr.mu.Lock()
	svr.listener = l
	svr.mu.Unlock()
	for {
		conn, err := l.Accept()
		if err != nil {
			// Closing the listener in Shutdown makes Accept fail; that is not an error.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn reads frames from conn on one goroutine, since frame boundaries can only be
// parsed sequentially, and answers each request on its own goroutine.  Responses share a
// per-connection write lock so that frames do not interleave.
func (svr *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !isEOF(err) {
				svr.log.Debug().Err(err).Str(`remote`, conn.RemoteAddr().String()).Msg(`closing stream`)
			}
			return
		}
		if header.Type != protocol.FrameRequest {
			continue
		}
		go svr.handleFrame(header, body, conn, writeMu)
	}
}

func (svr *Server) handleFrame(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	ctx := withCodec(svr.log.WithContext(context.Background()), codec.GetCodec(codec.CodecType(header.CodecType)))
	resp := svr.ServeDocument(ctx, conn.RemoteAddr().String(), body)

	writeMu.Lock()
	defer writeMu.Unlock()
	// The reply keeps the request's sequence number; that is how the client matches it.
	reply := protocol.Header{
		CodecType: header.CodecType,
		Type:      protocol.FrameResponse,
		Seq:       header.Seq,
	}
	if err := protocol.WriteFrame(conn, &reply, resp); err != nil {
		svr.log.Warn().Err(err).Msg(`failed to write response frame`)
	}
}

// Shutdown stops the server gracefully:
//  1. withdraw the published endpoints, so clients stop routing here
//  2. close the listener
//  3. wait for in-flight requests, at most timeout
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		svr.mu.RLock()
		for name := range svr.services {
			if err := svr.registry.Deregister(context.Background(), name, svr.advertiseAddr); err != nil {
				svr.log.Warn().Err(err).Str(`service`, name).Msg(`failed to deregister`)
			}
		}
		svr.mu.RUnlock()
	}

	// The flag must be set before closing, or Serve would report the Accept error.
	svr.shutdown.Store(true)
	svr.mu.RLock()
	listener := svr.listener
	svr.mu.RUnlock()
	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
