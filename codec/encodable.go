package codec

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

var (
	marshalerType       = reflect.TypeFor[json.Marshaler]()
	unmarshalerType     = reflect.TypeFor[json.Unmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// Encodable reports whether values of type t can be structurally encoded.  Types that
// encoding/json always refuses (channels, funcs, complex numbers, unsafe pointers, maps
// with unsupported keys) are rejected, looking through pointers, slices, arrays, maps and
// exported struct fields.  Interface types are accepted; their dynamic values are checked
// by the encoder itself.
func Encodable(t reflect.Type) error {
	return walk(t, encodeRules, make(map[reflect.Type]bool))
}

// Decodable reports whether a JSON document can be decoded into a value of type t.  On top
// of the Encodable rules, non-empty interfaces are rejected since the decoder cannot pick a
// concrete type for them.
func Decodable(t reflect.Type) error {
	return walk(t, decodeRules, make(map[reflect.Type]bool))
}

type rules struct {
	verb        string
	custom      func(reflect.Type) bool
	textKey     func(reflect.Type) bool
	interfaceOK func(reflect.Type) bool
}

var encodeRules = rules{
	verb: "encode",
	custom: func(t reflect.Type) bool {
		return t.Implements(marshalerType) || reflect.PointerTo(t).Implements(marshalerType) ||
			t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
	},
	textKey: func(t reflect.Type) bool {
		return t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
	},
	interfaceOK: func(reflect.Type) bool { return true },
}

var decodeRules = rules{
	verb: "decode",
	custom: func(t reflect.Type) bool {
		return reflect.PointerTo(t).Implements(unmarshalerType) ||
			reflect.PointerTo(t).Implements(textUnmarshalerType)
	},
	textKey: func(t reflect.Type) bool {
		return reflect.PointerTo(t).Implements(textUnmarshalerType)
	},
	interfaceOK: func(t reflect.Type) bool { return t.NumMethod() == 0 },
}

func walk(t reflect.Type, r rules, seen map[reflect.Type]bool) error {
	if t == nil {
		return fmt.Errorf("cannot %s untyped nil", r.verb)
	}
	if seen[t] {
		return nil
	}
	seen[t] = true
	if r.custom(t) {
		return nil
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.String:
		return nil
	case reflect.Interface:
		if r.interfaceOK(t) {
			return nil
		}
		return fmt.Errorf("cannot %s into interface type %s", r.verb, t)
	case reflect.Pointer, reflect.Slice, reflect.Array:
		if err := walk(t.Elem(), r, seen); err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
		return nil
	case reflect.Map:
		if !mapKeyOK(t.Key(), r) {
			return fmt.Errorf("cannot %s map key type %s", r.verb, t.Key())
		}
		if err := walk(t.Elem(), r, seen); err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
		return nil
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() && !f.Anonymous {
				continue
			}
			if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name == "-" {
				continue
			}
			if err := walk(f.Type, r, seen); err != nil {
				return fmt.Errorf("field %s.%s: %w", t, f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("cannot %s type %s", r.verb, t)
	}
}

func mapKeyOK(k reflect.Type, r rules) bool {
	switch k.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return r.textKey(k)
}
