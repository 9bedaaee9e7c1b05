// Package codec provides the structured encoding used for JSON-RPC arguments and results,
// and the checks the binder uses to prove, before any call is made, that a Go type can be
// encoded or decoded at all.
package codec

import "mini-jsonrpc/protocol"

type CodecType byte

const (
	CodecTypeJSON       = CodecType(protocol.CodecTypeJSON)
	CodecTypeStrictJSON = CodecType(protocol.CodecTypeStrictJSON)
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// Default is the codec used when none is configured.
var Default Codec = JSONCodec{}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeStrictJSON {
		return StrictJSONCodec{}
	}
	return JSONCodec{}
}
