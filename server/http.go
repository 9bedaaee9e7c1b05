package server

import (
	"io"
	"net/http"

	"nhooyr.io/websocket"

	"mini-jsonrpc/protocol"
)

// MaxRequestSize bounds the request documents read from HTTP bodies and WebSocket messages.
const MaxRequestSize = int64(protocol.MaxBodyLen)

// ServeHTTP answers a request document posted to any path.  Errors are reported inside the
// response document, always with status 200.
func (svr *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "JSON-RPC requests must be POSTed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(body)) > MaxRequestSize {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	log := svr.log.With().Str(`request_id`, r.Header.Get("X-Request-Id")).Logger()
	ctx := withCodec(log.WithContext(r.Context()), svr.codec)
	resp := svr.ServeDocument(ctx, r.URL.Path, body)

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Debug().Err(err).Msg(`failed to write response`)
	}
}

// WebSocketHandler returns a handler that upgrades the connection to a WebSocket and answers
// each text message as a request document.  Requests on one connection are answered in the
// order they arrive, which is how a client that sends id 0 every time matches them up.
func (svr *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svr.serveWebSocket(w, r); err != nil {
			svr.log.Error().Err(err).Msg(`JSON-RPC websocket error`)
		}
	})
}

func (svr *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) error {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer func() { _ = c.CloseNow() }()
	c.SetReadLimit(MaxRequestSize)

	ctx := withCodec(svr.log.WithContext(r.Context()), svr.codec)
	for {
		mt, msg, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) < 0 {
				return err
			}
			return nil
		}
		if mt != websocket.MessageText {
			continue
		}
		resp := svr.ServeDocument(ctx, r.URL.Path, msg)
		if err := c.Write(ctx, websocket.MessageText, resp); err != nil {
			return err
		}
	}
}
