package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var errSendFailed = errors.New("send failed")

// fakeConn implements Conn for testing.
type fakeConn struct {
	id      string
	sendErr error
	block   bool
	onSend  func()

	closed     atomic.Bool
	closeCalls atomic.Int32

	mu       sync.Mutex
	received [][]byte
}

var fakeConnSeq atomic.Int64

func newFakeConn() *fakeConn {
	return &fakeConn{id: fmt.Sprintf("fake-%d", fakeConnSeq.Add(1))}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Open() bool { return !c.closed.Load() }

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	if c.onSend != nil {
		c.onSend()
	}
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCalls.Add(1)
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.received))
	copy(out, c.received)
	return out
}
