package server

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"mini-jsonrpc/message"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type // nil when the method takes no arguments
	ReplyType reflect.Type // nil when the method only returns an error
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService creates a service and scans its methods.
func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = typ.Elem().Name()
	}
	svc := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no exported methods of a suitable signature", name)
	}
	return svc, nil
}

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// registerMethods keeps the exported methods shaped like one of
//
//	func (ctx context.Context) (R, error)
//	func (ctx context.Context, args A) (R, error)
//	func (ctx context.Context) error
//	func (ctx context.Context, args A) error
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		// In(0) is the receiver.
		if mt.NumIn() < 2 || mt.NumIn() > 3 || mt.In(1) != contextType || mt.IsVariadic() {
			continue
		}
		if mt.NumOut() < 1 || mt.NumOut() > 2 || mt.Out(mt.NumOut()-1) != errorType {
			continue
		}
		m := &methodType{method: method}
		if mt.NumIn() == 3 {
			m.ArgType = mt.In(2)
		}
		if mt.NumOut() == 2 {
			m.ReplyType = mt.Out(0)
		}
		s.method[lowerFirst(method.Name)] = m
	}
}

// handler returns the Handler that decodes params into the method's argument and calls it
// on the receiver.
func (s *service) handler(m *methodType) Handler {
	return func(ctx context.Context, params message.Params) (any, error) {
		args := []reflect.Value{s.rcvr, reflect.ValueOf(ctx)}
		if m.ArgType != nil {
			argv := reflect.New(m.ArgType)
			if err := DecodeParams(ctx, params, argv.Interface()); err != nil {
				return nil, err
			}
			args = append(args, argv.Elem())
		} else if params != nil && params.Len() > 0 {
			return nil, invalidParams(fmt.Errorf("%s takes no params", m.method.Name))
		}

		results := m.method.Func.Call(args)
		if errv := results[len(results)-1]; !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
		if m.ReplyType == nil {
			return nil, nil
		}
		return results[0].Interface(), nil
	}
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}
