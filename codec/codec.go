// Package codec serializes JSON-RPC envelopes for the stream transport.
//
// The frame header carries the codec type, so every request is answered with the
// codec it arrived in.
package codec

import "fmt"

type Type byte

const (
	TypeJSON Type = 0
	TypeCBOR Type = 1
)

func (t Type) String() string {
	switch t {
	case TypeJSON:
		return "json"
	case TypeCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() Type
}

var (
	jsonCodec Codec = JSONCodec{}
	cborCodec Codec = CBORCodec{}
)

// Get returns the codec for t, or an error for an unknown type.
func Get(t Type) (Codec, error) {
	switch t {
	case TypeJSON:
		return jsonCodec, nil
	case TypeCBOR:
		return cborCodec, nil
	default:
		return nil, fmt.Errorf("codec: unsupported type %d", byte(t))
	}
}

// ParseType maps a configuration name ("json", "cbor") to a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "json", "":
		return TypeJSON, nil
	case "cbor":
		return TypeCBOR, nil
	default:
		return 0, fmt.Errorf("codec: unknown codec %q", name)
	}
}
