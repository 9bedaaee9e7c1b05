// Package binding turns a description of a remote interface into working JSON-RPC calls.
//
// A description is a struct whose exported func-typed fields are the remote methods:
//
//	type Math struct {
//		_        struct{} `jsonrpc:"version=1.0"`
//		Subtract func(ctx context.Context, first, second int64) (int64, error) `params:"first,second"`
//		Ping     func(ctx context.Context) error
//	}
//
// Bind fills every method field with a dispatcher that encodes the arguments, sends the
// request over the transport found in the target struct and decodes the result.  All
// checks happen at binding time and nothing is assigned unless every method binds:
//
//	Bind / Implement
//	  → parse methods        names, version, calling convention, param names
//	  → check types          every param encodable, every result decodable
//	  → resolve fields       transport member, endpoint member or option
//	  → assign dispatchers   reflect.MakeFunc per method
//
// Tags on method fields:
//
//	jsonrpc:"name"             method name, default: the field name with a lower-case first letter
//	jsonrpc:"name,positional"  version 2.0 params by position instead of by name
//	jsonrpc:"-"                leave the field alone
//	params:"a,b"               parameter names, required for version 2.0 by-name methods
//
// A method whose first parameter is a context.Context uses the suspending convention and
// needs a transport.Transport; otherwise it blocks and needs a transport.BlockingTransport.
// All methods of a description must use the same convention.
package binding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"mini-jsonrpc/client"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
)

const (
	tagName       = "jsonrpc"
	paramsTagName = "params"
)

var (
	// ErrInvalidDescription is wrapped by errors about the description itself.
	ErrInvalidDescription = errors.New("invalid interface description")
	// ErrFieldResolution is wrapped by errors locating the transport or the endpoint.
	ErrFieldResolution = errors.New("cannot resolve transport fields")
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// method is one parsed method field.
type method struct {
	field      reflect.StructField
	name       string
	positional bool
	params     []reflect.Type
	names      []string
	result     reflect.Type // nil for methods that only return an error
	suspend    bool
}

// description is a parsed description struct.
type description struct {
	typ     reflect.Type
	version message.Version
	methods []*method
	suspend bool
}

// Bind implements the methods declared by the struct ptr points to, using the transport
// and endpoint members of the same struct.
func Bind(ptr any, opts ...Option) error {
	v, err := structPointer(ptr, "Bind")
	if err != nil {
		return err
	}
	return bind(v, v, opts)
}

// Implement implements the methods declared by the struct api points to, using the
// transport and endpoint members of the struct target points to.
func Implement(api any, target any, opts ...Option) error {
	av, err := structPointer(api, "Implement api")
	if err != nil {
		return err
	}
	tv, err := structPointer(target, "Implement target")
	if err != nil {
		return err
	}
	return bind(av, tv, opts)
}

func structPointer(ptr any, what string) (reflect.Value, error) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s needs a non-nil pointer to a struct, got %T", ErrInvalidDescription, what, ptr)
	}
	return v.Elem(), nil
}

func bind(api, target reflect.Value, opts []Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	desc, err := parseDescription(api, o.version)
	if err != nil {
		return err
	}
	res, err := resolveFields(target, desc.suspend, &o)
	if err != nil {
		return err
	}
	cdc := o.codec
	if cdc == nil {
		cdc = codec.Default
	}

	fns := make([]reflect.Value, len(desc.methods))
	for i, m := range desc.methods {
		fns[i] = reflect.MakeFunc(m.field.Type, dispatcher(desc.version, m, res, cdc))
	}
	// Nothing is assigned until every method has bound.
	for i, m := range desc.methods {
		api.FieldByIndex(m.field.Index).Set(fns[i])
	}
	return nil
}

// parseDescription validates every method of the description.  A non-empty override
// replaces the declared version.
func parseDescription(api reflect.Value, override message.Version) (*description, error) {
	t := api.Type()
	desc := &description{typ: t, version: message.V2}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "_" {
			if err := parseMarker(f, desc); err != nil {
				return nil, err
			}
		}
	}
	if override != "" {
		if !override.Valid() {
			return nil, fmt.Errorf("%w: version %q", ErrInvalidDescription, override)
		}
		desc.version = override
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get(tagName)
		if f.Type.Kind() != reflect.Func || !f.IsExported() || tag == "-" || tagRole(tag) != roleNone {
			continue
		}
		if !api.Field(i).IsNil() {
			return nil, fmt.Errorf("%w: %s.%s already has an implementation", ErrInvalidDescription, t, f.Name)
		}
		m, err := parseMethod(f, desc.version)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidDescription, t, f.Name, err)
		}
		if len(desc.methods) > 0 && m.suspend != desc.suspend {
			return nil, fmt.Errorf("%w: %s.%s: mixes blocking and context-taking methods", ErrInvalidDescription, t, f.Name)
		}
		desc.suspend = m.suspend
		desc.methods = append(desc.methods, m)
	}
	if len(desc.methods) == 0 {
		return nil, fmt.Errorf("%w: %s declares no methods", ErrInvalidDescription, t)
	}
	return desc, nil
}

// parseMarker reads the options of the blank marker field: jsonrpc:"version=1.0".
func parseMarker(f reflect.StructField, desc *description) error {
	tag, ok := f.Tag.Lookup(tagName)
	if !ok {
		return nil
	}
	for _, opt := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "":
		case "version":
			v, err := message.ParseVersion(value)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidDescription, err)
			}
			desc.version = v
		default:
			return fmt.Errorf("%w: unknown option %q", ErrInvalidDescription, key)
		}
	}
	return nil
}

func parseMethod(f reflect.StructField, version message.Version) (*method, error) {
	ft := f.Type
	m := &method{field: f, name: lowerFirst(f.Name)}

	if tag, ok := f.Tag.Lookup(tagName); ok {
		name, rest, _ := strings.Cut(tag, ",")
		if name = strings.TrimSpace(name); name != "" {
			m.name = name
		}
		for _, opt := range strings.Split(rest, ",") {
			switch strings.TrimSpace(opt) {
			case "":
			case "positional":
				m.positional = true
			default:
				return nil, fmt.Errorf("unknown option %q", opt)
			}
		}
	}

	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic methods are not supported")
	}
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		m.suspend = true
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		p := ft.In(i)
		if p == contextType {
			return nil, fmt.Errorf("context.Context is only allowed as the first parameter")
		}
		if err := codec.Encodable(p); err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i-first+1, err)
		}
		m.params = append(m.params, p)
	}

	switch {
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		if err := codec.Decodable(ft.Out(0)); err != nil {
			return nil, fmt.Errorf("result: %v", err)
		}
		m.result = ft.Out(0)
	default:
		return nil, fmt.Errorf("must return error or (T, error)")
	}

	if tag, ok := f.Tag.Lookup(paramsTagName); ok {
		if strings.TrimSpace(tag) != "" {
			for _, n := range strings.Split(tag, ",") {
				m.names = append(m.names, strings.TrimSpace(n))
			}
		}
		if len(m.names) != len(m.params) {
			return nil, fmt.Errorf("params tag names %d parameters, the method has %d", len(m.names), len(m.params))
		}
		seen := make(map[string]bool, len(m.names))
		for _, n := range m.names {
			if n == "" || seen[n] {
				return nil, fmt.Errorf("params tag %q has an empty or repeated name", tag)
			}
			seen[n] = true
		}
	}
	if version == message.V2 && !m.positional && len(m.params) > 0 && m.names == nil {
		return nil, fmt.Errorf("version 2.0 passes params by name: add a params tag or the positional option")
	}
	return m, nil
}

// dispatcher returns the body of the generated function for m.
func dispatcher(version message.Version, m *method, res *resolved, cdc codec.Codec) func([]reflect.Value) []reflect.Value {
	fail := func(err error) []reflect.Value {
		errv := reflect.New(errorType).Elem()
		errv.Set(reflect.ValueOf(err))
		if m.result == nil {
			return []reflect.Value{errv}
		}
		return []reflect.Value{reflect.Zero(m.result), errv}
	}

	return func(args []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if m.suspend {
			if c, ok := args[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			args = args[1:]
		}

		req := newRequest(version, m)
		for i, arg := range args {
			name := ""
			if m.names != nil {
				name = m.names[i]
			}
			if err := req.AddArgument(name, arg.Interface()); err != nil {
				return fail(err)
			}
		}

		send, err := res.sender()
		if err != nil {
			return fail(err)
		}
		endpoint, err := res.endpointFor(ctx, m.name)
		if err != nil {
			return fail(err)
		}
		raw, err := client.Exchange(ctx, send, endpoint, req)
		if err != nil {
			return fail(err)
		}

		if m.result == nil {
			return []reflect.Value{reflect.Zero(errorType)}
		}
		out := reflect.New(m.result)
		if err := client.DecodeResult(cdc, raw, out.Interface()); err != nil {
			return fail(err)
		}
		return []reflect.Value{out.Elem(), reflect.Zero(errorType)}
	}
}

func newRequest(version message.Version, m *method) *message.Request {
	switch {
	case version == message.V1:
		return message.NewV1(m.name)
	case m.positional:
		return message.NewV2Positional(m.name)
	default:
		return message.NewV2(m.name)
	}
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}
