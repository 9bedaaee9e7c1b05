// Package protocol holds the parts of the JSON-RPC protocol that are not the message
// bodies themselves: the error model shared by every dispatch, and the binary frame used
// when JSON-RPC documents are carried over a raw stream connection.
//
// Every failed call surfaces as a *Error of exactly one kind:
//
//	transport failed        → KindClient   (the transport's error, untouched)
//	peer reported an error  → KindProtocol (a *RemoteError, possibly synthesized
//	                                        for a malformed envelope, code -32603)
//	encode / decode failed  → KindCodec    (the encoder's error)
package protocol
