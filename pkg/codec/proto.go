package codec

import (
	"google.golang.org/protobuf/proto"
)

// Proto encodes protocol buffer messages in the binary wire format.
// New must return an empty message to decode into.
type Proto[T proto.Message] struct {
	New func() T
}

// NewProto creates a Proto codec.
func NewProto[T proto.Message](newFn func() T) Proto[T] {
	return Proto[T]{New: newFn}
}

// Encode marshals msg.
func (c Proto[T]) Encode(msg T) ([]byte, error) {
	if any(msg) == nil {
		return nil, &Error{Codec: "proto", Op: "encode", Err: ErrNilMessage}
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, &Error{Codec: "proto", Op: "encode", Err: err}
	}
	return data, nil
}

// Decode unmarshals data into a message created by New.
func (c Proto[T]) Decode(data []byte) (T, error) {
	msg := c.New()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero T
		return zero, &Error{Codec: "proto", Op: "decode", Err: err}
	}
	return msg, nil
}
