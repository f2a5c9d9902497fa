package wsjson_test

import (
	"context"
	"testing"
	"time"

	"github.com/fenwren/websock"
	"github.com/fenwren/websock/internal/test/assert"
	"github.com/fenwren/websock/internal/test/wstest"
	"github.com/fenwren/websock/internal/xsync"
	"github.com/fenwren/websock/wsjson"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	c1, c2, err := wstest.Pipe(nil, nil)
	assert.Success(t, err)
	defer c1.CloseNow()
	defer c2.CloseNow()

	type request struct {
		Method string            `json:"method"`
		Params map[string]string `json:"params"`
	}
	exp := request{
		Method: "subscribe",
		Params: map[string]string{"channel": "updates"},
	}

	writeErr := xsync.Go(func() error {
		return wsjson.Write(ctx, c1, exp)
	})

	var got request
	err = wsjson.Read(ctx, c2, &got)
	assert.Success(t, err)
	assert.Success(t, <-writeErr)

	assert.Equal(t, "read JSON", exp, got)

	closeErr := xsync.Go(func() error {
		return c1.Close(websock.StatusNormalClosure, "")
	})

	err = wsjson.Read(ctx, c2, &got)
	assert.Equal(t, "close status", websock.StatusNormalClosure, websock.CloseStatus(err))
	assert.Success(t, <-closeErr)
}

func TestJSONBinaryRejected(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	c1, c2, err := wstest.Pipe(nil, nil)
	assert.Success(t, err)
	defer c1.CloseNow()
	defer c2.CloseNow()

	writeErr := xsync.Go(func() error {
		return c1.Send(ctx, websock.MessageBinary, []byte(`{}`))
	})

	var v interface{}
	err = wsjson.Read(ctx, c2, &v)
	assert.Contains(t, err, "unexpected message type")
	assert.Success(t, <-writeErr)
}
