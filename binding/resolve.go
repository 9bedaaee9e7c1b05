package binding

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"mini-jsonrpc/client"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/transport"
)

type role int

const (
	roleNone role = iota
	roleTransport
	roleEndpoint
)

func (r role) String() string {
	if r == roleTransport {
		return "transport"
	}
	return "endpoint"
}

var (
	transportType         = reflect.TypeFor[transport.Transport]()
	blockingTransportType = reflect.TypeFor[transport.BlockingTransport]()
	stringerType          = reflect.TypeFor[fmt.Stringer]()
	urlType               = reflect.TypeFor[url.URL]()
)

// member is a non-func field of the target that may play a role.
type member struct {
	field  reflect.StructField
	tagged role
}

// resolved locates the transport and the endpoint of a bound target.  Both are read from
// the target on every call, so the target may be reconfigured after binding.
type resolved struct {
	target    reflect.Value // addressable struct
	transport []int         // field index
	viaAddr   bool          // the transport methods need the field's address
	endpoint  []int         // nil when an option supplies the endpoint
	fixed     *string
	resolver  client.EndpointResolver
	suspend   bool
}

// resolveFields applies the resolution policy to target:
//  1. a member tagged jsonrpc:"transport" (or "inner") / jsonrpc:"endpoint" (or "base_url")
//  2. otherwise a member named inner / base_url, compared without case and underscores
//  3. otherwise, when the target has exactly one member, that member is the transport
//
// Endpoint options take precedence over an endpoint member.
func resolveFields(target reflect.Value, suspend bool, o *options) (*resolved, error) {
	members := collectMembers(target.Type())
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s has no members to hold a transport", ErrFieldResolution, target.Type())
	}

	r := &resolved{target: target, fixed: o.endpoint, resolver: o.resolver, suspend: suspend}

	tr, err := pick(members, roleTransport, "inner")
	if err != nil {
		return nil, err
	}
	if tr == nil {
		exported := exportedMembers(members)
		if len(exported) != 1 {
			return nil, fmt.Errorf("%w: %s has %d candidate members and none is tagged jsonrpc:\"transport\" or named inner; the transport is ambiguous",
				ErrFieldResolution, target.Type(), len(exported))
		}
		tr = exported[0]
	}
	if err := checkTransport(tr.field, suspend); err != nil {
		return nil, err
	}
	r.transport = tr.field.Index
	r.viaAddr = !implements(tr.field.Type, suspend) // checkTransport proved the pointer does

	ep, err := pick(members, roleEndpoint, "baseurl")
	if err != nil {
		return nil, err
	}
	if ep != nil && ep.field.Name == tr.field.Name {
		ep = nil
	}
	switch {
	case o.resolver != nil || o.endpoint != nil:
		// options win
	case ep == nil:
		return nil, fmt.Errorf("%w: %s has no endpoint member (tag one jsonrpc:\"endpoint\" or name it base_url) and no endpoint option was given",
			ErrFieldResolution, target.Type())
	default:
		if err := checkEndpoint(ep.field); err != nil {
			return nil, err
		}
		r.endpoint = ep.field.Index
	}
	return r, nil
}

// collectMembers lists the non-func fields of t, and func fields tagged for a role.
// Unexported fields are only listed when tagged or named for a role, so that using them can
// be reported instead of ignored.
func collectMembers(t reflect.Type) []*member {
	var members []*member
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get(tagName)
		if f.Name == "_" || tag == "-" {
			continue
		}
		m := &member{field: f, tagged: tagRole(tag)}
		if f.Type.Kind() == reflect.Func && m.tagged == roleNone {
			continue
		}
		if !f.IsExported() && m.tagged == roleNone && nameRole(f.Name) == roleNone {
			continue
		}
		members = append(members, m)
	}
	return members
}

func exportedMembers(members []*member) []*member {
	var out []*member
	for _, m := range members {
		if m.field.IsExported() {
			out = append(out, m)
		}
	}
	return out
}

func tagRole(tag string) role {
	switch strings.TrimSpace(strings.Split(tag, ",")[0]) {
	case "transport", "inner":
		return roleTransport
	case "endpoint", "base_url":
		return roleEndpoint
	}
	return roleNone
}

func nameRole(name string) role {
	switch normalize(name) {
	case "inner":
		return roleTransport
	case "baseurl":
		return roleEndpoint
	}
	return roleNone
}

func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// pick returns the single member playing want, by tag and then by name, or nil when no
// member claims the role.
func pick(members []*member, want role, name string) (*member, error) {
	var tagged, named []*member
	for _, m := range members {
		if m.tagged == want {
			tagged = append(tagged, m)
		}
		if m.tagged == roleNone && normalize(m.field.Name) == name {
			named = append(named, m)
		}
	}
	candidates := tagged
	if len(candidates) == 0 {
		candidates = named
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		if !candidates[0].field.IsExported() {
			return nil, fmt.Errorf("%w: %s member %s is unexported", ErrFieldResolution, want, candidates[0].field.Name)
		}
		return candidates[0], nil
	}
	names := make([]string, len(candidates))
	for i, m := range candidates {
		names[i] = m.field.Name
	}
	return nil, fmt.Errorf("%w: %s is ambiguous between members %s", ErrFieldResolution, want, strings.Join(names, ", "))
}

func implements(t reflect.Type, suspend bool) bool {
	if suspend {
		return t.Implements(transportType)
	}
	return t.Implements(blockingTransportType)
}

func checkTransport(f reflect.StructField, suspend bool) error {
	if implements(f.Type, suspend) || (f.Type.Kind() != reflect.Pointer && f.Type.Kind() != reflect.Interface && implements(reflect.PointerTo(f.Type), suspend)) {
		return nil
	}
	want := blockingTransportType
	if suspend {
		want = transportType
	}
	return fmt.Errorf("%w: transport member %s of type %s does not implement %s", ErrFieldResolution, f.Name, f.Type, want)
}

func checkEndpoint(f reflect.StructField) error {
	t := f.Type
	switch {
	case t.Kind() == reflect.String, t == urlType, t == reflect.PointerTo(urlType),
		t.Implements(stringerType), reflect.PointerTo(t).Implements(stringerType):
		return nil
	}
	return fmt.Errorf("%w: endpoint member %s has unsupported type %s (want string, url.URL, *url.URL or fmt.Stringer)",
		ErrFieldResolution, f.Name, t)
}

// sender reads the transport member as it is now.
func (r *resolved) sender() (client.SendFunc, error) {
	v := r.target.FieldByIndex(r.transport)
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Func:
		if v.IsNil() {
			return nil, protocol.NewClientError(fmt.Errorf("transport member is nil"))
		}
	}
	if r.viaAddr {
		v = v.Addr()
	}
	if r.suspend {
		return v.Interface().(transport.Transport).Send, nil
	}
	return client.Blocked(v.Interface().(transport.BlockingTransport)), nil
}

// endpointFor reads the endpoint for a call to method.  Each call gets its own copy.
func (r *resolved) endpointFor(ctx context.Context, method string) (string, error) {
	switch {
	case r.resolver != nil:
		endpoint, err := r.resolver.ResolveEndpoint(ctx, method)
		if err != nil {
			return "", protocol.NewClientError(fmt.Errorf("resolving endpoint for %q: %w", method, err))
		}
		return endpoint, nil
	case r.fixed != nil:
		return *r.fixed, nil
	}

	v := r.target.FieldByIndex(r.endpoint)
	if v.Kind() == reflect.String {
		return v.String(), nil
	}
	if (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) && v.IsNil() {
		return "", protocol.NewClientError(fmt.Errorf("endpoint member is nil"))
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String(), nil
	}
	// url.URL and other Stringers with pointer receivers.
	return v.Addr().Interface().(fmt.Stringer).String(), nil
}
