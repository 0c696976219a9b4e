package codec

import (
	"encoding/json"
)

// JSONCodec is the canonical JSON-RPC wire format.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Type() Type {
	return TypeJSON
}
