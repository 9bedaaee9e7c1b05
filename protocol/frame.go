package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream frame layout.  A JSON-RPC document sent over a raw stream is prefixed by a
// fixed 14-byte header so the reader knows where the document ends:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│ft│   seq   │ bodyLen │    body ...    │
//	│ jrp  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// seq is the stream-level correlation key; the JSON-RPC id inside the body is left alone.
const (
	MagicByte1   byte = 0x6a // 'j'
	MagicByte2   byte = 0x72 // 'r'
	MagicByte3   byte = 0x70 // 'p'
	FrameVersion byte = 0x01
	HeaderSize   int  = 14

	// MaxBodyLen bounds a single frame body.
	MaxBodyLen uint32 = 64 << 20
)

// FrameType distinguishes requests, responses and heartbeats.
type FrameType byte

const (
	FrameRequest   FrameType = 0
	FrameResponse  FrameType = 1
	FrameHeartbeat FrameType = 2 // no body
)

// Codec identifiers carried in the header, mirrored from the codec package to avoid an
// import cycle.
const (
	CodecTypeJSON       byte = 0
	CodecTypeStrictJSON byte = 1
)

// Header is the fixed frame header.
type Header struct {
	CodecType byte
	Type      FrameType
	Seq       uint32
	BodyLen   uint32
}

// WriteFrame writes a header and body to w.  Callers sharing w between goroutines must
// serialize calls, or frames will interleave.
func WriteFrame(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = FrameVersion
	buf[4] = h.CodecType
	buf[5] = byte(h.Type)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one complete frame from r, validating the header.
func ReadFrame(r io.Reader) (*Header, []byte, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, err
	}
	if raw[0] != MagicByte1 || raw[1] != MagicByte2 || raw[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", raw[0:3])
	}
	if raw[3] != FrameVersion {
		return nil, nil, fmt.Errorf("unsupported frame version: %d", raw[3])
	}
	if raw[4] != CodecTypeJSON && raw[4] != CodecTypeStrictJSON {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", raw[4])
	}
	ft := FrameType(raw[5])
	if ft != FrameRequest && ft != FrameResponse && ft != FrameHeartbeat {
		return nil, nil, fmt.Errorf("unsupported frame type: %d", raw[5])
	}
	h := &Header{
		CodecType: raw[4],
		Type:      ft,
		Seq:       binary.BigEndian.Uint32(raw[6:10]),
		BodyLen:   binary.BigEndian.Uint32(raw[10:14]),
	}
	if h.BodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("frame body of %d bytes exceeds limit", h.BodyLen)
	}
	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
