package connection

import (
	"net"
	"sync"

	"goredisc/pkg/parser"
)

// socket is one established transport. A Connection owns at most one at a
// time and replaces it on every reconnect.
type socket struct {
	conn net.Conn
	wake chan struct{}
	done chan struct{}

	// mu orders reply delivery against teardown: once dead is set no
	// further reply from this socket reaches the handler.
	mu     sync.Mutex
	dead   bool
	closed sync.Once
}

func newSocket(conn net.Conn) *socket {
	return &socket{
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *socket) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// kill marks the socket dead and closes it. It waits for an in-progress
// reply delivery to finish. It reports whether this call did the kill.
func (s *socket) kill() bool {
	s.mu.Lock()
	first := !s.dead
	s.dead = true
	s.mu.Unlock()

	s.closed.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
	return first
}

func (c *Connection) readLoop(s *socket) {
	defer c.wg.Done()

	p := parser.NewParserSize(s.conn, c.opts.ReadBufferSize)
	for {
		reply, err := p.Parse()
		if err != nil {
			c.fail(s, err)
			return
		}

		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			return
		}
		c.handler.OnReply(reply)
		s.mu.Unlock()
	}
}

func (c *Connection) writeLoop(s *socket) {
	defer c.wg.Done()

	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}

		for {
			c.mu.Lock()
			if c.sock != s {
				c.mu.Unlock()
				return
			}
			bufs := c.out
			n := c.outBytes
			c.out = nil
			c.mu.Unlock()

			if len(bufs) == 0 {
				break
			}

			nb := net.Buffers(bufs)
			if _, err := nb.WriteTo(s.conn); err != nil {
				c.fail(s, err)
				return
			}

			c.mu.Lock()
			if c.sock != s {
				c.mu.Unlock()
				return
			}
			c.outBytes -= n
			drained := c.needDrain && c.outBytes < c.opts.WriteHighWaterMark
			if drained {
				c.needDrain = false
			}
			c.mu.Unlock()

			if drained {
				c.handler.OnDrain()
			}
		}
	}
}
