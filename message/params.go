package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is the parameter set of a request: either ByPosition or ByName.
type Params interface {
	Len() int
	isParams()
}

// ByPosition holds encoded arguments in call order.
type ByPosition []json.RawMessage

func (p ByPosition) Len() int { return len(p) }
func (ByPosition) isParams()  {}

func (p ByPosition) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(p))
}

// NamedArg is one entry of a ByName parameter set.
type NamedArg struct {
	Name  string
	Value json.RawMessage
}

// ByName holds encoded arguments keyed by name.  Entries keep insertion order, which is
// also the order they are written in.
type ByName []NamedArg

func (p ByName) Len() int { return len(p) }
func (ByName) isParams()  {}

// Set adds or replaces the argument called name.
func (p *ByName) Set(name string, value json.RawMessage) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, NamedArg{Name: name, Value: value})
}

// Get returns the argument called name.
func (p ByName) Get(name string) (json.RawMessage, bool) {
	for _, arg := range p {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

func (p ByName) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, arg := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(arg.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(arg.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(arg.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping the members in document order.
func (p *ByName) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("params: expected object, got %s", data)
	}
	out := ByName{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out.Set(name, value)
	}
	*p = out
	return nil
}

// decodeParams decodes the raw "params" member of a request.
func decodeParams(raw json.RawMessage) (Params, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ByName{}, nil
	}
	switch raw[0] {
	case '[':
		var p []json.RawMessage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return ByPosition(p), nil
	case '{':
		var p ByName
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("params must be an array or an object, got %s", raw)
}
