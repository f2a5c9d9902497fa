package websock

import "errors"

// Stream decode faults. Any of these fails the connection: the transport
// is force closed and no further events are produced.
var (
	// ErrInvalidSignature means a frame header used reserved bits.
	ErrInvalidSignature = errors.New("invalid frame signature")

	// ErrInvalidMask means a frame's mask key was not exactly 4 bytes.
	ErrInvalidMask = errors.New("invalid mask key")

	// ErrUnexpectedEOS means the byte stream ended in the middle of a frame.
	ErrUnexpectedEOS = errors.New("unexpected end of stream")

	// ErrFrameTooLarge means a frame declared a payload over the read limit.
	ErrFrameTooLarge = errors.New("frame payload over read limit")

	// ErrMessageTooLarge means a reassembled message grew over the read limit.
	ErrMessageTooLarge = errors.New("message over read limit")
)

// Handshake faults.
var (
	// ErrNotAcceptable is wrapped by Accept when the client's handshake
	// request violates the upgrade contract.
	ErrNotAcceptable = errors.New("handshake request not acceptable")

	// ErrRejected is wrapped by Dial when the server refuses the upgrade.
	ErrRejected = errors.New("handshake rejected by server")

	// ErrAcceptMismatch is wrapped by Dial when the server's accept token
	// does not match the handshake key.
	ErrAcceptMismatch = errors.New("handshake accept token mismatch")
)

// ErrClosed is returned by operations on a connection that has already
// reached its terminal state.
var ErrClosed = errors.New("connection already closed")
