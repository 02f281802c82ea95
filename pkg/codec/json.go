package codec

import (
	"bytes"
	"encoding/json"
)

// JSON encodes values of type T with encoding/json.
type JSON[T any] struct {
	// DisallowUnknownFields rejects objects with fields T does not declare.
	DisallowUnknownFields bool
}

// Encode marshals msg.
func (c JSON[T]) Encode(msg T) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &Error{Codec: "json", Op: "encode", Err: err}
	}
	return data, nil
}

// Decode unmarshals data into a new T.
func (c JSON[T]) Decode(data []byte) (T, error) {
	var msg T
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&msg); err != nil {
		var zero T
		return zero, &Error{Codec: "json", Op: "decode", Err: err}
	}
	return msg, nil
}
