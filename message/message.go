// Package message defines the JSON-RPC request and response envelopes and their exact wire
// encoding.
//
//	request:   {"id":0,"jsonrpc":"2.0","method":"subtract","params":{"first":42,"second":23}}
//	response:  {"id":0,"jsonrpc":"2.0","result":19}
//	           {"id":0,"jsonrpc":"2.0","error":{"code":-6,"message":"Insufficient funds"}}
//
// Version 1.0 requests carry params by position, version 2.0 requests by name unless
// built with NewV2Positional.  A by-name request without arguments omits "params".
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the protocol version carried in the "jsonrpc" member.
type Version string

const (
	V1 Version = "1.0"
	V2 Version = "2.0"
)

func (v Version) Valid() bool { return v == V1 || v == V2 }

func (v Version) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid JSON-RPC version %q", string(v))
	}
	return json.Marshal(string(v))
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid JSON-RPC version %s", data)
	}
	if !Version(s).Valid() {
		return fmt.Errorf("invalid JSON-RPC version %q", s)
	}
	*v = Version(s)
	return nil
}

// ParseVersion accepts "1.0", "2.0" and the short forms "1" and "2".
func ParseVersion(s string) (Version, error) {
	switch s {
	case "1.0", "1":
		return V1, nil
	case "2.0", "2":
		return V2, nil
	}
	return "", fmt.Errorf("invalid JSON-RPC version %q", s)
}

type idKind byte

const (
	idNull idKind = iota
	idNumber
	idString
)

// ID correlates a request with its response.  It is an integer, a string or null; the zero
// value is null.
type ID struct {
	kind idKind
	num  int64
	str  string
}

func NumberID(n int64) ID  { return ID{kind: idNumber, num: n} }
func StringID(s string) ID { return ID{kind: idString, str: s} }

func (id ID) IsNull() bool { return id.kind == idNull }

// Number returns the numeric value of the id and whether it is numeric.
func (id ID) Number() (int64, bool) { return id.num, id.kind == idNumber }

// Str returns the string value of the id and whether it is a string.
func (id ID) Str() (string, bool) { return id.str, id.kind == idString }

func (id ID) String() string {
	switch id.kind {
	case idNumber:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	default:
		return "null"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return strconv.AppendInt(nil, id.num, 10), nil
	case idString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: must be an integer, a string or null", data)
	}
	*id = NumberID(n)
	return nil
}

func isNull(data []byte) bool {
	return len(data) == 0 || string(data) == "null"
}
