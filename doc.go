// Package websock implements a framed duplex message channel over a
// persistent byte stream, upgraded from an HTTP/1.1 handshake.
//
// Use Accept to upgrade an inbound request and Dial to connect out. A Conn
// produces inbound events through Next and writes through Send, Ping and
// Close; every outbound frame passes through a per-connection queue so
// concurrent writers never interleave bytes on the wire, and each write
// call returns only once its frame was actually transmitted.
//
// The wire format is the RFC 6455 framing layout, without extension
// support. Use the wsjson and wspb subpackages to send and receive JSON
// and protobuf messages.
package websock // import "github.com/fenwren/websock"
