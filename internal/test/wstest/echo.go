package wstest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/fenwren/websock"
	"github.com/fenwren/websock/internal/test/xrand"
	"github.com/fenwren/websock/internal/xsync"
)

// EchoLoop echos every message received from c until an error occurs, the
// peer closes or the context expires.
func EchoLoop(ctx context.Context, c *websock.Conn) error {
	defer c.CloseNow()

	c.SetReadLimit(1 << 30)

	ctx, cancel := context.WithTimeout(ctx, time.Minute*5)
	defer cancel()

	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return err
		}

		switch ev := ev.(type) {
		case websock.Message:
			err = c.Send(ctx, ev.Type, ev.Data)
			if err != nil {
				return err
			}
		case websock.CloseEvent:
			return websock.CloseError{Code: ev.Code, Reason: ev.Reason}
		case websock.Ping, websock.Pong:
			// Next already answered any ping.
		}
	}
}

// Echo writes a random message to c and ensures the same comes back.
func Echo(ctx context.Context, c *websock.Conn, max int) error {
	expType := websock.MessageBinary
	if xrand.Bool() {
		expType = websock.MessageText
	}

	msg := randMessage(expType, xrand.Int(max))

	writeErr := xsync.Go(func() error {
		return c.Send(ctx, expType, msg)
	})

	var act websock.Message
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return err
		}
		m, ok := ev.(websock.Message)
		if ok {
			act = m
			break
		}
	}

	err := <-writeErr
	if err != nil {
		return err
	}

	if expType != act.Type {
		return fmt.Errorf("unexpected message type (%v): %v", expType, act.Type)
	}

	if !bytes.Equal(msg, act.Data) {
		return fmt.Errorf("unexpected message read: %#v", act.Data)
	}

	return nil
}

func randMessage(typ websock.MessageType, n int) []byte {
	if typ == websock.MessageBinary {
		return xrand.Bytes(n)
	}
	return []byte(xrand.String(n))
}
