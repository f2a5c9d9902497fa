package websock_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenwren/websock"
	"github.com/fenwren/websock/internal/test/assert"
	"github.com/fenwren/websock/internal/test/wstest"
	"github.com/fenwren/websock/internal/xsync"
)

func TestConn(t *testing.T) {
	t.Parallel()

	t.Run("echo", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		c1, c2, err := wstest.Pipe(nil, nil)
		assert.Success(t, err)
		defer c1.CloseNow()
		defer c2.CloseNow()

		echoErr := xsync.Go(func() error {
			return wstest.EchoLoop(ctx, c2)
		})

		c1.SetReadLimit(1 << 30)
		for i := 0; i < 8; i++ {
			assert.Success(t, wstest.Echo(ctx, c1, 1<<14))
		}

		err = c1.Close(websock.StatusNormalClosure, "")
		assert.Success(t, err)

		assert.Equal(t, "close status", websock.StatusNormalClosure, websock.CloseStatus(<-echoErr))
	})

	t.Run("pingPong", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		c1, c2, err := wstest.Pipe(nil, nil)
		assert.Success(t, err)
		defer c1.CloseNow()
		defer c2.CloseNow()

		pingErr := xsync.Go(func() error {
			return c1.Ping(ctx, []byte("heartbeat"))
		})

		ev, err := c2.Next(ctx)
		assert.Success(t, err)
		assert.Equal(t, "ping", websock.Ping{Data: []byte("heartbeat")}, ev)
		assert.Success(t, <-pingErr)

		ev, err = c1.Next(ctx)
		assert.Success(t, err)
		assert.Equal(t, "pong", websock.Pong{Data: []byte("heartbeat")}, ev)
	})

	t.Run("subprotocol", func(t *testing.T) {
		t.Parallel()

		c1, c2, err := wstest.Pipe(&websock.DialOptions{
			Subprotocols: []string{"chat", "echo"},
		}, &websock.AcceptOptions{
			Subprotocols: []string{"echo"},
		})
		assert.Success(t, err)
		defer c1.CloseNow()
		defer c2.CloseNow()

		assert.Equal(t, "subprotocol", "echo", c1.Subprotocol())
		assert.Equal(t, "subprotocol", "echo", c2.Subprotocol())
	})
}

func TestAcceptDial(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websock.Accept(w, r, &websock.AcceptOptions{
			Subprotocols: []string{"echo"},
		})
		if err != nil {
			t.Error(err)
			return
		}
		defer c.CloseNow()

		err = wstest.EchoLoop(r.Context(), c)
		if websock.CloseStatus(err) != websock.StatusNormalClosure {
			t.Errorf("expected normal closure: %v", err)
		}
	}))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	c, _, err := websock.Dial(ctx, wstest.URL(s), &websock.DialOptions{
		Subprotocols: []string{"echo"},
	})
	assert.Success(t, err)
	defer c.CloseNow()

	assert.Equal(t, "subprotocol", "echo", c.Subprotocol())

	err = c.Send(ctx, websock.MessageText, []byte("over the wire"))
	assert.Success(t, err)

	ev, err := c.Next(ctx)
	assert.Success(t, err)
	assert.Equal(t, "echoed message", websock.Message{
		Type: websock.MessageText,
		Data: []byte("over the wire"),
	}, ev)

	err = c.Close(websock.StatusNormalClosure, "")
	assert.Success(t, err)
}
