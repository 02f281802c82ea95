// Package server provides an embeddable WebSocket server with topic based
// publish/subscribe.
//
// A Server sits on top of a protocol.Transport, which owns the wire, and
// manages the sessions above it: upgrade negotiation, per-connection frame
// dispatch, the registry of live sessions and the topic registry.
//
// # Session Lifecycle
//
// A Session is registered as soon as the transport reports the connection
// and moves through four states:
//
//   - Connecting: the upgrade request is negotiated; data may be attached
//   - Open: the handshake completed; the open handler has fired
//   - Closing: the peer sent a close frame, or the server closed after an error
//   - Closed: the transport reported the disconnect
//
// On disconnect the session leaves the registry and every topic it was
// subscribed to. The close handler fires at most once per opened session.
//
// # Upgrade Negotiation
//
// Checks run in order and stop at the first failure:
//  1. GET method and a well-formed request, else 400
//  2. Upgrade: websocket and a request-target equal to Config.Path, else 400
//  3. Origin against AllowedOriginPattern and AllowedOrigins, else 403
//  4. The upgrade handler, if any, with a response preset to 400
//
// # Errors
//
// Protocol violations, codec failures and handler panics on a connection are
// logged, reported to the Observer and passed to the error handler. With
// Config.CloseOnException the connection is then closed with 1002, 1003,
// 1007 or 1011. Failures never affect other connections.
//
// # Example Usage
//
//	srv := server.New[string, struct{}](
//	    server.DefaultConfig[string]().WithCodec(codec.PlainText{}),
//	)
//	srv.OnOpen(func(s *server.Session[string, struct{}]) {
//	    _ = srv.Subscribe(s, "general")
//	}).OnMessage(func(s *server.Session[string, struct{}], msg string) {
//	    _ = srv.Publish("general", msg)
//	})
//
//	if err := srv.Listen(8080); err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Stop()
//
// # Thread Safety
//
// All Server and Session methods are safe for concurrent use. Frames of one
// connection are dispatched sequentially; connections are dispatched
// concurrently. The session and topic registries are sharded so unrelated
// connections do not contend on one lock.
package server
