package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/protocol"
)

// ErrEmptyMethod is returned when serializing a request without a method name.
var ErrEmptyMethod = errors.New("request method must not be empty")

// Request is a JSON-RPC request.  Requests built by this package always use id 0: the
// client is a plain request/response caller and never has two calls in flight on the
// same id.
type Request struct {
	ID      ID
	Version Version
	Method  string
	Params  Params

	err error // first argument encoding failure, reported by Serialize
}

// NewRequest returns a request without arguments.  Version 1.0 requests take arguments by
// position and version 2.0 requests by name.
func NewRequest(version Version, method string) *Request {
	r := &Request{ID: NumberID(0), Version: version, Method: method}
	if version == V1 {
		r.Params = ByPosition{}
	} else {
		r.Params = ByName{}
	}
	return r
}

func NewV1(method string) *Request { return NewRequest(V1, method) }
func NewV2(method string) *Request { return NewRequest(V2, method) }

// NewV2Positional returns a version 2.0 request that takes its arguments by position.
func NewV2Positional(method string) *Request {
	return &Request{ID: NumberID(0), Version: V2, Method: method, Params: ByPosition{}}
}

// AddArgument encodes value and appends it to the parameters.  The name is only used by
// by-name requests.  Encoding failures are returned as codec errors.
func (r *Request) AddArgument(name string, value any) error {
	raw, err := codec.Default.Encode(value)
	if err != nil {
		return protocol.NewCodecError(fmt.Errorf("encoding argument %q: %w", name, err))
	}
	switch p := r.Params.(type) {
	case ByPosition:
		r.Params = append(p, raw)
	case ByName:
		p.Set(name, raw)
		r.Params = p
	case nil:
		r.Params = ByName{{Name: name, Value: raw}}
	}
	return nil
}

// WithArgument is the chaining form of AddArgument.  The first failure is kept and returned
// by Serialize; later arguments are ignored once it happened.
func (r *Request) WithArgument(name string, value any) *Request {
	if r.err == nil {
		r.err = r.AddArgument(name, value)
	}
	return r
}

type wireRequest struct {
	ID      ID      `json:"id"`
	Version Version `json:"jsonrpc"`
	Method  string  `json:"method"`
	Params  Params  `json:"params,omitempty"`
}

// Serialize renders the request in its wire form.
func (r *Request) Serialize() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, protocol.NewCodecError(err)
	}
	return data, nil
}

func (r *Request) MarshalJSON() ([]byte, error) {
	if r.Method == "" {
		return nil, ErrEmptyMethod
	}
	w := wireRequest{ID: r.ID, Version: r.Version, Method: r.Method, Params: r.Params}
	if named, ok := r.Params.(ByName); ok && len(named) == 0 {
		w.Params = nil
	}
	return json.Marshal(w)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var w struct {
		ID      ID              `json:"id"`
		Version *Version        `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Method == "" {
		return ErrEmptyMethod
	}
	params, err := decodeParams(w.Params)
	if err != nil {
		return err
	}
	*r = Request{ID: w.ID, Version: V1, Method: w.Method, Params: params}
	if w.Version != nil {
		r.Version = *w.Version
	}
	return nil
}

// ParseRequest decodes a request document.
func ParseRequest(data []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, protocol.NewCodecError(err)
	}
	return &r, nil
}
