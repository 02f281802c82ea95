package codec

import "unicode/utf8"

// PlainText encodes strings as their UTF-8 bytes.
//
// Decoding rejects payloads that are not valid UTF-8, so a malformed text
// frame surfaces as a codec failure instead of a mangled string.
type PlainText struct{}

// Encode returns the UTF-8 bytes of msg.
func (PlainText) Encode(msg string) ([]byte, error) {
	if !utf8.ValidString(msg) {
		return nil, &Error{Codec: "text", Op: "encode", Err: ErrInvalidUTF8}
	}
	return []byte(msg), nil
}

// Decode returns data as a string.
func (PlainText) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", &Error{Codec: "text", Op: "decode", Err: ErrInvalidUTF8}
	}
	return string(data), nil
}

// Bytes passes payloads through unchanged.
type Bytes struct{}

// Encode returns msg.
func (Bytes) Encode(msg []byte) ([]byte, error) {
	return msg, nil
}

// Decode returns a copy of data; transports may reuse their read buffers.
func (Bytes) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
