package websock

import (
	"context"
	"fmt"

	"github.com/fenwren/websock/internal/errd"
)

// pendingMessage accumulates the fragments of the one message that may be
// in flight on a connection at a time. The opcode of the first fragment
// fixes the finished message's type.
type pendingMessage struct {
	typ   MessageType
	parts [][]byte
	size  int64
}

// Next blocks until the next inbound event is available and returns it.
//
// Pings are answered with pongs automatically before the Ping event is
// delivered. A Close frame completes the close handshake and yields a
// terminal CloseEvent. After the terminal event, and after any read fault,
// every further call returns ErrClosed.
//
// The context is checked once per decoded frame; a blocked read is
// unblocked by closing the connection, not by the context.
func (c *Conn) Next(ctx context.Context) (_ Event, err error) {
	defer errd.Wrap(&err, "failed to read next event")

	err = c.readMu.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer c.readMu.unlock()

	if c.readDone || c.isClosed() {
		return nil, ErrClosed
	}

	for {
		err = ctx.Err()
		if err != nil {
			return nil, err
		}

		f, err := readFrame(c.br, c.readLimit.Load())
		if err != nil {
			c.readDone = true
			if c.isClosed() {
				return nil, ErrClosed
			}
			c.closeForce()
			return nil, err
		}

		ev, err := c.handleFrame(f)
		if err != nil {
			c.readDone = true
			c.closeForce()
			return nil, err
		}
		if ev != nil {
			return ev, nil
		}
	}
}

// handleFrame dispatches one decoded frame. It returns a nil event for a
// non-final fragment.
func (c *Conn) handleFrame(f frame) (Event, error) {
	switch f.opcode {
	case opContinuation, opText, opBinary:
		return c.handleDataFrame(f)

	case opClose:
		ce, err := parseClosePayload(f.payload)
		if err != nil {
			return nil, fmt.Errorf("received invalid close payload: %w", err)
		}
		c.readDone = true

		// Echo one close frame back, swallowing write errors, then
		// force close. The echo is attempted even if we initiated the
		// handshake ourselves.
		echo, err := c.newFrame(true, opClose, f.payload)
		if err == nil {
			<-c.sq.enqueue(echo)
		}
		c.closeForce()

		return CloseEvent{Code: ce.Code, Reason: ce.Reason}, nil

	case opPing:
		pong, err := c.newFrame(true, opPong, f.payload)
		if err != nil {
			return nil, err
		}
		// Fire and forget relative to the ping event.
		c.sq.enqueue(pong)
		return Ping{Data: f.payload}, nil

	case opPong:
		return Pong{Data: f.payload}, nil

	default:
		return nil, fmt.Errorf("received unknown opcode %v", f.opcode)
	}
}

func (c *Conn) handleDataFrame(f frame) (Event, error) {
	if c.pending == nil {
		if f.opcode == opContinuation {
			return nil, fmt.Errorf("received continuation frame without a message in progress")
		}
		c.pending = &pendingMessage{typ: MessageType(f.opcode)}
	} else if f.opcode != opContinuation {
		return nil, fmt.Errorf("received opcode %v frame during a fragmented message", f.opcode)
	}

	p := c.pending
	p.size += int64(len(f.payload))
	if limit := c.readLimit.Load(); limit > 0 && p.size > limit {
		return nil, fmt.Errorf("%w: %d bytes over limit of %d", ErrMessageTooLarge, p.size, limit)
	}
	p.parts = append(p.parts, f.payload)

	if !f.fin {
		return nil, nil
	}

	data := make([]byte, 0, p.size)
	for _, part := range p.parts {
		data = append(data, part...)
	}
	c.pending = nil

	return Message{Type: p.typ, Data: data}, nil
}
