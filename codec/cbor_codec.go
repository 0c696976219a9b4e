package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORCodec encodes envelopes as CBOR maps keyed like their JSON form. Params, results
// and error data stay raw JSON and travel as byte strings.
type CBORCodec struct{}

func (CBORCodec) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (CBORCodec) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func (CBORCodec) Type() Type {
	return TypeCBOR
}
