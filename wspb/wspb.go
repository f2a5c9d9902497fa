// Package wspb provides helpers for reading and writing protobuf messages.
package wspb

import (
	"context"
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/fenwren/websock"
	"github.com/fenwren/websock/internal/errd"
)

// Read reads the next binary message from c into v with protobuf.
// Control events are handled internally until a message arrives. If the
// peer closes the connection, the returned error wraps a
// websock.CloseError.
func Read(ctx context.Context, c *websock.Conn, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to read protobuf message")

	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return err
		}

		switch ev := ev.(type) {
		case websock.Message:
			if ev.Type != websock.MessageBinary {
				return fmt.Errorf("unexpected message type for protobuf: %v", ev.Type)
			}

			err = proto.Unmarshal(ev.Data, v)
			if err != nil {
				return fmt.Errorf("failed to unmarshal protobuf: %w", err)
			}
			return nil
		case websock.CloseEvent:
			return websock.CloseError{Code: ev.Code, Reason: ev.Reason}
		}
	}
}

// Write writes the protobuf message v to c.
func Write(ctx context.Context, c *websock.Conn, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to write protobuf message")

	b, err := proto.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}

	return c.Send(ctx, websock.MessageBinary, b)
}
