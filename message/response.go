package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"mini-jsonrpc/protocol"
)

// Response is a JSON-RPC response whose result decodes into P.
type Response[P any] struct {
	ID      ID
	Version *Version // nil for legacy peers that do not send "jsonrpc"
	Payload Payload[P]
}

// Payload holds either a result or an error, never both.
type Payload[P any] struct {
	result P
	err    *protocol.RemoteError
}

func ResultPayload[P any](result P) Payload[P] { return Payload[P]{result: result} }

func ErrorPayload[P any](err *protocol.RemoteError) Payload[P] {
	if err == nil {
		err = protocol.Malformed(protocol.MsgNeitherPresent)
	}
	return Payload[P]{err: err}
}

func (p Payload[P]) IsError() bool { return p.err != nil }

// Unwrap returns the result, or the error object when the payload is an error.
func (p Payload[P]) Unwrap() (P, *protocol.RemoteError) {
	if p.err != nil {
		var zero P
		return zero, p.err
	}
	return p.result, nil
}

// Result returns the result, or a protocol error when the payload is an error.
func (p Payload[P]) Result() (P, error) {
	result, remote := p.Unwrap()
	if remote != nil {
		return result, protocol.NewProtocolError(remote)
	}
	return result, nil
}

func versionPtr(v Version) *Version { return &v }

func NewV1Result[P any](id ID, result P) *Response[P] {
	return &Response[P]{ID: id, Version: versionPtr(V1), Payload: ResultPayload(result)}
}

func NewV2Result[P any](id ID, result P) *Response[P] {
	return &Response[P]{ID: id, Version: versionPtr(V2), Payload: ResultPayload(result)}
}

func NewV1Error[P any](id ID, err *protocol.RemoteError) *Response[P] {
	return &Response[P]{ID: id, Version: versionPtr(V1), Payload: ErrorPayload[P](err)}
}

func NewV2Error[P any](id ID, err *protocol.RemoteError) *Response[P] {
	return &Response[P]{ID: id, Version: versionPtr(V2), Payload: ErrorPayload[P](err)}
}

// envelope is the raw shape of a response: result and error sit next to id and jsonrpc.
type envelope struct {
	ID      ID              `json:"id"`
	Version *Version        `json:"jsonrpc,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

func (r Response[P]) MarshalJSON() ([]byte, error) {
	env := envelope{ID: r.ID, Version: r.Version}
	result, remote := r.Payload.Unwrap()
	var err error
	if remote != nil {
		env.Error, err = json.Marshal(remote)
	} else {
		env.Result, err = json.Marshal(result)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the envelope and applies the payload policy:
//
//	error set,   result absent/null  → error
//	result set,  error absent/null   → result (null only when P can hold it)
//	both set                         → synthesized -32603 "both result and error present"
//	neither set                      → synthesized -32603 "neither result nor error present"
//
// A result that does not decode as P is an error.
func (r *Response[P]) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	errSet := env.Error != nil && !isNull(bytes.TrimSpace(env.Error))
	resultSet := env.Result != nil
	resultNull := resultSet && isNull(bytes.TrimSpace(env.Result))

	out := Response[P]{ID: env.ID, Version: env.Version}
	switch {
	case errSet && resultSet && !resultNull:
		out.Payload = ErrorPayload[P](protocol.Malformed(protocol.MsgBothPresent))
	case errSet:
		var remote protocol.RemoteError
		if err := json.Unmarshal(env.Error, &remote); err != nil {
			return fmt.Errorf("decoding error object: %w", err)
		}
		out.Payload = ErrorPayload[P](&remote)
	case resultNull && !Nullable(reflect.TypeFor[P]()):
		return fmt.Errorf("decoding result: null cannot be decoded into %s", reflect.TypeFor[P]())
	case resultSet:
		var result P
		if err := json.Unmarshal(env.Result, &result); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
		out.Payload = ResultPayload(result)
	default:
		out.Payload = ErrorPayload[P](protocol.Malformed(protocol.MsgNeitherPresent))
	}
	*r = out
	return nil
}

// Nullable reports whether JSON null is a value of t: a pointer, interface, slice or map.
func Nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

// DecodeResponse decodes a response document.  Decode failures are codec errors.
func DecodeResponse[P any](data []byte) (*Response[P], error) {
	var r Response[P]
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, protocol.NewCodecError(err)
	}
	return &r, nil
}
