package server

import (
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
)

// CodeServerError is reported for handler failures that carry no JSON-RPC error object.
const CodeServerError int64 = -32000

// ErrInvalidParams marks failures to decode a request's params.  It is reported with code
// -32602.
var ErrInvalidParams = errors.New("invalid params")

// A Handler serves one method.  A handler error that is, or wraps, a *protocol.RemoteError
// is sent as is; other errors are sent with CodeServerError.
type Handler func(ctx context.Context, params message.Params) (any, error)

// Func builds a Handler from a typed function.  Params are decoded into I as described by
// DecodeParams.
func Func[I, O any](fn func(context.Context, I) (O, error)) Handler {
	return func(ctx context.Context, params message.Params) (any, error) {
		var in I
		if err := DecodeParams(ctx, params, &in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

type codecKey struct{}

// withCodec selects the codec DecodeParams uses for the request carried by ctx.
func withCodec(ctx context.Context, c codec.Codec) context.Context {
	return context.WithValue(ctx, codecKey{}, c)
}

func codecFrom(ctx context.Context) codec.Codec {
	if c, ok := ctx.Value(codecKey{}).(codec.Codec); ok {
		return c
	}
	return codec.Default
}

var (
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// DecodeParams decodes params into v, a non-nil pointer.
//
// Params by name are decoded as a JSON object.  Params by position fill the exported fields
// of a struct in declaration order, a slice or array as a whole, and any other type from the
// single element.  Empty params leave v at its zero value, with pointers allocated.
func DecodeParams(ctx context.Context, params message.Params, v any) error {
	cdc := codecFrom(ctx)
	target := reflect.ValueOf(v).Elem()
	for target.Kind() == reflect.Pointer {
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		target = target.Elem()
	}
	if params == nil || params.Len() == 0 {
		return nil
	}

	switch p := params.(type) {
	case message.ByName:
		obj, err := json.Marshal(p)
		if err != nil {
			return invalidParams(err)
		}
		if err := cdc.Decode(obj, target.Addr().Interface()); err != nil {
			return invalidParams(err)
		}
	case message.ByPosition:
		if err := decodePositional(cdc, p, target); err != nil {
			return invalidParams(err)
		}
	}
	return nil
}

func decodePositional(cdc codec.Codec, params message.ByPosition, target reflect.Value) error {
	t := target.Type()
	custom := reflect.PointerTo(t).Implements(jsonUnmarshalerType) || reflect.PointerTo(t).Implements(textUnmarshalerType)
	switch {
	case t.Kind() == reflect.Struct && !custom:
		fields := positionalFields(t)
		if len(params) > len(fields) {
			return fmt.Errorf("got %d params, %s has %d fields", len(params), t, len(fields))
		}
		for i, raw := range params {
			field := target.FieldByIndex(fields[i].Index)
			if err := cdc.Decode(raw, field.Addr().Interface()); err != nil {
				return fmt.Errorf("param %d (%s): %w", i, fields[i].Name, err)
			}
		}
		return nil
	case (t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Interface) && !custom:
		arr, err := json.Marshal(params)
		if err != nil {
			return err
		}
		return cdc.Decode(arr, target.Addr().Interface())
	default:
		if len(params) != 1 {
			return fmt.Errorf("got %d params, %s takes one", len(params), t)
		}
		return cdc.Decode(params[0], target.Addr().Interface())
	}
}

// positionalFields lists the exported fields of t that take part in JSON encoding.
func positionalFields(t reflect.Type) []reflect.StructField {
	var fields []reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous || f.Tag.Get("json") == "-" {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

func invalidParams(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidParams, err)
}

// remoteError converts a handler error to the error object sent to the caller.
func remoteError(err error) *protocol.RemoteError {
	if remote, ok := protocol.AsRemote(err); ok {
		return remote
	}
	if errors.Is(err, ErrInvalidParams) {
		return &protocol.RemoteError{Code: protocol.CodeInvalidParams, Message: err.Error()}
	}
	return &protocol.RemoteError{Code: CodeServerError, Message: err.Error()}
}
