package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved JSON-RPC error codes.
const (
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603
)

// RemoteError is the error object carried in the "error" member of a response.
// Data is kept verbatim and never interpreted.
type RemoteError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("request failed with code %d: %s", e.Code, e.Message)
}

// Kind identifies where a call failed.
type Kind int

const (
	KindClient   Kind = iota + 1 // the transport failed
	KindProtocol                 // the peer reported an error, or sent a malformed envelope
	KindCodec                    // local encoding or decoding failed
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindProtocol:
		return "protocol"
	case KindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by a dispatch.  Exactly one of the three kinds is
// set, and Err is the error that caused it: the transport's own error for KindClient, a
// *RemoteError for KindProtocol, and the encoder's error for KindCodec.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// NewClientError wraps an error returned by a transport.
func NewClientError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindClient, Err: err}
}

// NewProtocolError wraps an error object reported by the remote peer.
func NewProtocolError(remote *RemoteError) error {
	if remote == nil {
		return nil
	}
	return &Error{Kind: KindProtocol, Err: remote}
}

// NewCodecError wraps a local encode or decode failure.
func NewCodecError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindCodec, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsClient(err error) bool   { return KindOf(err) == KindClient }
func IsProtocol(err error) bool { return KindOf(err) == KindProtocol }
func IsCodec(err error) bool    { return KindOf(err) == KindCodec }

// AsRemote returns the remote error object carried by err, if any.
func AsRemote(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// Messages of the errors synthesized for malformed envelopes.
const (
	MsgBothPresent    = "both result and error present"
	MsgNeitherPresent = "neither result nor error present"
)

// Malformed returns a fresh internal error describing a malformed response envelope.
func Malformed(msg string) *RemoteError {
	return &RemoteError{Code: CodeInternalError, Message: msg}
}
