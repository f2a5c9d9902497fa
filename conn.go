package websock

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/fenwren/websock/internal/bufpool"
)

// defaultReadLimit bounds a single frame payload and an assembled message
// unless SetReadLimit overrides it.
const defaultReadLimit = 32768

// Conn represents one upgraded connection.
//
// Inbound events are pulled with Next; only one Next call may be in flight
// at a time. Send, Ping and Close may be called concurrently with each
// other and with Next: every outbound frame goes through the connection's
// send queue, which writes frames strictly in enqueue order.
//
// Be sure to close the connection when you are finished with it to release
// the associated resources.
type Conn struct {
	rwc         io.ReadWriteCloser
	br          *bufio.Reader
	bw          *bufio.Writer
	client      bool
	subprotocol string

	readLimit atomic.Int64

	sq *sendQueue

	// readMu serializes access to br. pending and readDone are only
	// touched with readMu held.
	readMu   mu
	pending  *pendingMessage
	readDone bool

	closeMu    sync.Mutex
	closed     bool
	wroteClose bool
}

type connConfig struct {
	rwc         io.ReadWriteCloser
	br          *bufio.Reader
	bw          *bufio.Writer
	client      bool
	subprotocol string
}

func newConn(cfg connConfig) *Conn {
	c := &Conn{
		rwc:         cfg.rwc,
		br:          cfg.br,
		bw:          cfg.bw,
		client:      cfg.client,
		subprotocol: cfg.subprotocol,
		readMu:      newMu(),
	}
	c.readLimit.Store(defaultReadLimit)
	c.sq = newSendQueue(c.bw)
	return c
}

// Subprotocol returns the negotiated subprotocol.
// An empty string means the default protocol.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// SetReadLimit sets the max number of bytes to accept for a single frame
// payload and for a whole reassembled message.
//
// By default the limit is 32768 bytes. Exceeding it fails the connection
// with ErrFrameTooLarge or ErrMessageTooLarge.
func (c *Conn) SetReadLimit(n int64) {
	c.readLimit.Store(n)
}

// CloseNow closes the connection without attempting a close frame. Use it
// when the transport is already unusable.
func (c *Conn) CloseNow() error {
	return c.closeForce()
}

// closeForce transitions the connection to its terminal state: the
// transport is closed and every not-yet-written queued frame is rejected
// with ErrClosed. Calling it again is a no-op.
func (c *Conn) closeForce() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	err := c.rwc.Close()
	c.closeMu.Unlock()

	c.sq.reject(ErrClosed)

	if c.client {
		go c.reclaimBuffers()
	}
	return err
}

// reclaimBuffers returns the dial-side pooled bufio buffers once the drain
// loop and the read loop have let go of them. Next never touches br after
// the closed flag is set, so handing the buffers back is safe.
func (c *Conn) reclaimBuffers() {
	c.sq.wait()
	bufpool.PutWriter(c.bw)

	_ = c.readMu.lock(context.Background())
	defer c.readMu.unlock()
	bufpool.PutReader(c.br)
}

func (c *Conn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// mu is a mutex that can be acquired under a context.
type mu struct {
	ch chan struct{}
}

func newMu() mu {
	return mu{ch: make(chan struct{}, 1)}
}

func (m mu) lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.ch <- struct{}{}:
		return nil
	}
}

func (m mu) unlock() {
	<-m.ch
}
