package websock

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/fenwren/websock/internal/errd"
)

// Send writes p as a single-fragment message of the given type.
//
// It returns once the frame has actually been written to the transport (or
// the write failed), not merely once it was queued: await the return value
// when you need to know a message was transmitted.
func (c *Conn) Send(ctx context.Context, typ MessageType, p []byte) (err error) {
	defer errd.Wrap(&err, "failed to send message")

	switch typ {
	case MessageText, MessageBinary:
	default:
		return fmt.Errorf("unknown message type %v", typ)
	}
	return c.sendFrame(ctx, opcode(typ), p)
}

// Ping writes a ping frame carrying p. It returns once the frame was
// written; it does not wait for the peer's pong. Watch for the Pong event
// from Next if you need the round trip.
func (c *Conn) Ping(ctx context.Context, p []byte) (err error) {
	defer errd.Wrap(&err, "failed to ping")

	if len(p) > maxControlPayload {
		return fmt.Errorf("ping payload of %d bytes over %d byte maximum", len(p), maxControlPayload)
	}
	return c.sendFrame(ctx, opPing, p)
}

func (c *Conn) sendFrame(ctx context.Context, op opcode, p []byte) error {
	f, err := c.newFrame(true, op, p)
	if err != nil {
		return err
	}

	select {
	case err = <-c.sq.enqueue(f):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newFrame builds an outbound frame, generating a fresh mask key when this
// side of the connection is the client.
func (c *Conn) newFrame(fin bool, op opcode, p []byte) (frame, error) {
	f := frame{
		fin:     fin,
		opcode:  op,
		payload: p,
	}
	if c.client {
		f.mask = make([]byte, 4)
		_, err := rand.Read(f.mask)
		if err != nil {
			return frame{}, fmt.Errorf("failed to generate mask key: %w", err)
		}
	}
	return f, nil
}
