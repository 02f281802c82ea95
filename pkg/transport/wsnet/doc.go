// Package wsnet is the default protocol.Transport: net/http parses the
// upgrade request and gorilla/websocket performs the handshake and the frame
// codec.
//
// Every accepted connection gets a random UUID identity. Outbound frames are
// queued on a per-connection FIFO and written by one writer goroutine, so
// Send never blocks on the network. Inbound frames are read and dispatched
// on the connection's own goroutine, one at a time.
package wsnet
