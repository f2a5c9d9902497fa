package websock

import (
	"bufio"
	"sync"

	"github.com/eapache/queue"

	"github.com/fenwren/websock/internal/errd"
)

// sendQueue serializes concurrent outbound frames into one ordered byte
// stream. Frames hit the wire in enqueue order and are never interleaved:
// a single drain goroutine owns the writer while entries are pending.
type sendQueue struct {
	bw *bufio.Writer

	mu       sync.Mutex
	entries  *queue.Queue
	draining bool
	closed   bool

	wg sync.WaitGroup
}

type sendEntry struct {
	f    frame
	done chan error
}

func newSendQueue(bw *bufio.Writer) *sendQueue {
	return &sendQueue{
		bw:      bw,
		entries: queue.New(),
	}
}

// enqueue appends f and returns its completion handle. The handle receives
// exactly one value: nil once the frame was flushed to the transport, or
// the write/rejection error. A closed queue rejects immediately with
// ErrClosed.
func (sq *sendQueue) enqueue(f frame) <-chan error {
	done := make(chan error, 1)

	sq.mu.Lock()
	if sq.closed {
		sq.mu.Unlock()
		done <- ErrClosed
		return done
	}
	sq.entries.Add(sendEntry{f: f, done: done})
	if !sq.draining {
		sq.draining = true
		sq.wg.Add(1)
		go sq.drain()
	}
	sq.mu.Unlock()

	return done
}

// drain writes queued frames one at a time until the queue empties or is
// rejected. Only the entry currently being written belongs to drain;
// everything still queued belongs to reject.
func (sq *sendQueue) drain() {
	defer sq.wg.Done()

	for {
		sq.mu.Lock()
		if sq.closed || sq.entries.Length() == 0 {
			sq.draining = false
			sq.mu.Unlock()
			return
		}
		e := sq.entries.Remove().(sendEntry)
		sq.mu.Unlock()

		e.done <- sq.writeFlush(e.f)
	}
}

func (sq *sendQueue) writeFlush(f frame) (err error) {
	defer errd.Wrap(&err, "failed to write queued frame")

	err = writeFrame(sq.bw, f)
	if err != nil {
		return err
	}
	return sq.bw.Flush()
}

// reject empties the queue, failing every not-yet-written entry with err,
// and refuses all future enqueues. A frame mid-write is not cancelled; its
// handle resolves with the write's own outcome.
func (sq *sendQueue) reject(err error) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	sq.closed = true
	for sq.entries.Length() > 0 {
		e := sq.entries.Remove().(sendEntry)
		e.done <- err
	}
}

// wait blocks until no drain goroutine is running. Callers must reject the
// queue first or wait may block indefinitely.
func (sq *sendQueue) wait() {
	sq.wg.Wait()
}
