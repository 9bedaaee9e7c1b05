package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec uses encoding/json with its default, lenient decoding.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

// StrictJSONCodec rejects unknown object members and trailing data when decoding, so that
// a result drifting away from the declared type is reported instead of silently dropped.
type StrictJSONCodec struct{}

func (StrictJSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (StrictJSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func (StrictJSONCodec) Type() CodecType {
	return CodecTypeStrictJSON
}
