// Package codec converts application messages to and from frame payloads.
//
// A server is configured with one Encoder and one Decoder for its message
// type. Both may fail; failures are reported on the connection that
// triggered them and never stop the server.
//
// Built-in codecs:
//
//   - PlainText: UTF-8 strings
//   - Bytes: raw payloads, no conversion
//   - JSON[T]: encoding/json values
//   - Proto[T]: protocol buffer messages
//
// Any pair of functions can be adapted with EncoderFunc and DecoderFunc.
package codec
