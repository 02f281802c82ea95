package codec

import (
	"errors"
	"fmt"
)

// Encoder converts a message into a frame payload.
type Encoder[T any] interface {
	Encode(msg T) ([]byte, error)
}

// Decoder converts a frame payload into a message.
type Decoder[T any] interface {
	Decode(data []byte) (T, error)
}

// Codec is an Encoder and a Decoder for the same message type.
type Codec[T any] interface {
	Encoder[T]
	Decoder[T]
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc[T any] func(msg T) ([]byte, error)

// Encode calls f(msg).
func (f EncoderFunc[T]) Encode(msg T) ([]byte, error) {
	return f(msg)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc[T any] func(data []byte) (T, error)

// Decode calls f(data).
func (f DecoderFunc[T]) Decode(data []byte) (T, error) {
	return f(data)
}

type pair[T any] struct {
	Encoder[T]
	Decoder[T]
}

// Join combines an Encoder and a Decoder into a Codec.
func Join[T any](enc Encoder[T], dec Decoder[T]) Codec[T] {
	return pair[T]{Encoder: enc, Decoder: dec}
}

// Codec errors.
var (
	// ErrInvalidUTF8 is returned by PlainText when a payload is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("codec: invalid UTF-8")

	// ErrNilMessage is returned when encoding a nil message.
	ErrNilMessage = errors.New("codec: nil message")
)

// Error wraps a codec failure with the codec name and direction.
type Error struct {
	Codec string // e.g. "json"
	Op    string // "encode" or "decode"
	Err   error
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s %s: %v", e.Codec, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
