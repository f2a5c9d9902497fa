package websock

import (
	"errors"
	"unicode/utf8"
)

// MessageType represents the type of a data message.
// See https://tools.ietf.org/html/rfc6455#section-5.6.
type MessageType int

// MessageType constants.
const (
	// MessageText is for UTF-8 encoded text messages like JSON.
	MessageText MessageType = iota + 1
	// MessageBinary is for binary messages like protobufs.
	MessageBinary
)

// Event is one inbound protocol event produced by Conn.Next.
//
// The concrete types are Message, Ping, Pong and CloseEvent. The set is
// closed; consume events with a type switch over exactly these four.
type Event interface {
	event()
}

// Message is a finished inbound data message, reassembled from one or
// more frames.
type Message struct {
	Type MessageType
	Data []byte
}

// Text decodes the message payload as UTF-8 text.
//
// Invalid UTF-8 in a text message is a decode fault of this message only,
// never a protocol failure: the connection stays usable.
func (m Message) Text() (string, error) {
	if !utf8.Valid(m.Data) {
		return "", errors.New("message payload is not valid UTF-8")
	}
	return string(m.Data), nil
}

// Ping is an inbound ping. The connection has already queued the
// answering pong by the time the event is delivered.
type Ping struct {
	Data []byte
}

// Pong is an inbound pong. No automatic action is taken.
type Pong struct {
	Data []byte
}

// CloseEvent reports the peer's Close frame. It is the terminal event of a
// connection's inbound sequence.
type CloseEvent struct {
	Code   StatusCode
	Reason string
}

func (Message) event()    {}
func (Ping) event()       {}
func (Pong) event()       {}
func (CloseEvent) event() {}
