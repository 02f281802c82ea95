// Package protocol defines the contract between the session layer and the
// transport that owns the wire.
//
// A transport accepts connections, parses the HTTP upgrade request, performs
// the WebSocket handshake and (de)serializes frames. Everything above that
// line lives in package server, which consumes the transport through the
// small set of types declared here.
//
// # Connection lifecycle
//
// For every accepted connection a transport calls, in order:
//
//  1. Handler.Connected once the connection exists, before any request is read
//  2. Handler.Upgrade with the decoded upgrade request
//  3. Handler.Opened after a successful handshake (never after a rejection)
//  4. Handler.Frame for every decoded frame, sequentially
//  5. Handler.Disconnected exactly once when the connection is gone
//
// Calls for one connection never overlap. Calls for different connections
// may run concurrently.
//
// # Outbound traffic
//
// Each connection is bound to a Sender. Sends are fire-and-forget: a nil
// error only means the frame was queued.
//
// # Frame Kinds
//
//   - FrameText (0x1): UTF-8 data frame
//   - FrameBinary (0x2): binary data frame
//   - FrameClose (0x8): close frame with status code and reason
//   - FramePing (0x9): ping control frame
//   - FramePong (0xA): pong control frame
package protocol
