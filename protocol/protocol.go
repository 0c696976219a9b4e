// Package protocol implements the binary frame that carries JSON-RPC envelopes over
// stream connections.
//
// A fixed 14-byte header precedes every body, so the reader always knows how many
// bytes belong to the current envelope:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ jrp  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// Seq correlates a response frame with its request frame. It is independent of the
// JSON-RPC id, which notifications lack.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"jsonrpc-router/codec"
)

const (
	MagicByte1 byte = 0x6a // 'j'
	MagicByte2 byte = 0x72 // 'r'
	MagicByte3 byte = 0x70 // 'p'
	Version    byte = 0x01
	HeaderSize int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodyLen bounds the allocation a peer can force with one header.
	MaxBodyLen uint32 = 16 << 20
)

type MsgType byte

const (
	MsgTypeRequest   MsgType = 0
	MsgTypeResponse  MsgType = 1
	MsgTypeHeartbeat MsgType = 2 // No body
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("msgtype(%d)", byte(t))
	}
}

// Header is the fixed frame header.
type Header struct {
	Codec   codec.Type
	MsgType MsgType
	Seq     uint32
	BodyLen uint32 // Set by Encode from the body it writes
}

// Encode writes one frame to w with a single Write call. Callers sharing w between
// goroutines must still serialize calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return fmt.Errorf("protocol: body of %d bytes exceeds limit", len(body))
	}
	h.BodyLen = uint32(len(body))

	buf := make([]byte, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = byte(h.Codec)
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r, validating every header field before reading the body.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("protocol: invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("protocol: unsupported version: %d", headerBuf[3])
	}
	if _, err := codec.Get(codec.Type(headerBuf[4])); err != nil {
		return nil, nil, fmt.Errorf("protocol: %w", err)
	}
	msgType := MsgType(headerBuf[5])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse && msgType != MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("protocol: unsupported message type: %d", headerBuf[5])
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("protocol: body length %d exceeds limit", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		Codec:   codec.Type(headerBuf[4]),
		MsgType: msgType,
		Seq:     seq,
		BodyLen: bodyLen,
	}, body, nil
}
