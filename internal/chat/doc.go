// Package chat is the demo application served by "pubsock serve".
//
// Clients authenticate with a signed token in the "token" cookie. The
// upgrade hook verifies it and stores the caller as the session's Member.
// Every opened session joins the "general" topic; each text message is
// republished there prefixed with the sender's name, and join and leave
// notices are published as sessions open and close.
package chat
