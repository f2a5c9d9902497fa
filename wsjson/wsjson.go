// Package wsjson provides helpers for reading and writing JSON messages.
package wsjson

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fenwren/websock"
	"github.com/fenwren/websock/internal/errd"
)

// Read reads the next text message from c into v with encoding/json.
// Control events are handled internally until a message arrives. If the
// peer closes the connection, the returned error wraps a
// websock.CloseError.
func Read(ctx context.Context, c *websock.Conn, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to read JSON message")

	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return err
		}

		switch ev := ev.(type) {
		case websock.Message:
			if ev.Type != websock.MessageText {
				return fmt.Errorf("unexpected message type for JSON: %v", ev.Type)
			}

			err = json.Unmarshal(ev.Data, v)
			if err != nil {
				return fmt.Errorf("failed to unmarshal JSON: %w", err)
			}
			return nil
		case websock.CloseEvent:
			return websock.CloseError{Code: ev.Code, Reason: ev.Reason}
		}
	}
}

// Write writes the JSON message v to c.
func Write(ctx context.Context, c *websock.Conn, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to write JSON message")

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return c.Send(ctx, websock.MessageText, b)
}
